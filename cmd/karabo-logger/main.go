// karabo-logger — standalone process hosting Karabo's central logger:
// subscribes to every device's signalLog broadcast and appends the
// batched records to size-rotated flat files.
//
// Usage:
//
//	karabo-logger <server.yaml>    Run against the logger block of a server config
//	karabo-logger --version        Print version information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/karabo/internal/klog"
	"github.com/newtron-network/karabo/pkg/fabric"
	"github.com/newtron-network/karabo/pkg/fabric/broker"
	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/logger"
	"github.com/newtron-network/karabo/pkg/serverconfig"
	"github.com/newtron-network/karabo/pkg/version"
)

func main() {
	if len(os.Args) == 2 && os.Args[1] == "--version" {
		fmt.Println(version.Info())
		os.Exit(0)
	}
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: karabo-logger <server.yaml>\n")
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "karabo-logger: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := serverconfig.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Logger.Directory == "" {
		return fmt.Errorf("config %s: logger.directory is required", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.BrokerAddress})
	defer rdb.Close()

	instanceID := firstOrDefault(cfg.Logger.LoggerInstanceIDs, "karaboLogger")
	ss := fabric.New(broker.New(rdb, instanceID), instanceID, "DataLogger")

	central, err := logger.NewCentralLogger(
		cfg.Logger.Directory,
		cfg.Logger.MaximumFileSizeMB,
		time.Duration(cfg.Logger.FlushIntervalSeconds)*time.Second,
		func(openErr error) { klog.WithField("error", openErr).Error("central logger: failed to open log file") },
	)
	if err != nil {
		return err
	}
	defer central.Close()
	go central.Run(ctx)

	ss.SubscribeSignal(ctx, "signalLog", func(env *fabric.Envelope) {
		if err := central.HandleLogTopicMessage(env.Body); err != nil {
			klog.WithField("error", err).Warn("central logger: dropping malformed batch")
		}
	})
	ss.Start(ctx)
	defer ss.Stop()

	mgr := logger.NewManager(cfg.Logger.LoggerInstanceIDs, cfg.Logger.LoggerMapPath, nil)
	if err := mgr.Restore(); err != nil {
		klog.WithField("error", err).Warn("logger manager: no prior assignment map restored")
	}
	ss.RegisterSlot("slotGetLoggedDevices", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		out := hash.New()
		for deviceID, loggerID := range mgr.Snapshot() {
			out.Set(deviceID, loggerID)
		}
		return out, nil
	})

	klog.WithInstance(instanceID).WithField("directory", cfg.Logger.Directory).Info("karabo-logger running")
	<-ctx.Done()
	return mgr.Persist()
}

func firstOrDefault(ids []string, fallback string) string {
	if len(ids) > 0 {
		return ids[0]
	}
	return fallback
}
