// karabo-alarm-service — standalone process hosting the shared alarm
// table that every device on a broker reports threshold crossings to.
//
// Usage:
//
//	karabo-alarm-service <server.yaml>    Run against the alarm block of a server config
//	karabo-alarm-service --version        Print version information
//
// Devices address slotUpdateAlarms/slotAcknowledgeAlarm/slotRequestAlarmDump
// at this process's instance id (device.DefaultAlarmServiceInstanceID
// unless a device server overrides it via SetAlarmService).
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
	"github.com/newtron-network/karabo/pkg/alarm"
	"github.com/newtron-network/karabo/pkg/fabric"
	"github.com/newtron-network/karabo/pkg/fabric/broker"
	"github.com/newtron-network/karabo/pkg/serverconfig"
	"github.com/newtron-network/karabo/pkg/version"
)

func main() {
	if len(os.Args) == 2 && os.Args[1] == "--version" {
		fmt.Println(version.Info())
		os.Exit(0)
	}
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: karabo-alarm-service <server.yaml>\n")
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "karabo-alarm-service: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := serverconfig.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Alarm.StoragePath == "" {
		return fmt.Errorf("config %s: alarm.storagePath is required", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.BrokerAddress})
	defer rdb.Close()

	instanceID := cfg.Alarm.InstanceID
	ss := fabric.New(broker.New(rdb, instanceID), instanceID, "AlarmService")
	ss.Start(ctx)
	defer ss.Stop()

	svc := alarm.NewService(ss, instanceID,
		cfg.Alarm.StoragePath, time.Duration(cfg.Alarm.FlushIntervalSeconds)*time.Second)
	if err := svc.Restore(); err != nil {
		klog.WithField("error", err).Warn("alarm service: no prior snapshot restored")
	}
	go svc.StartPersistence(ctx)

	klog.WithInstance(instanceID).WithField("storagePath", cfg.Alarm.StoragePath).Info("karabo-alarm-service running")
	<-ctx.Done()
	return nil
}
