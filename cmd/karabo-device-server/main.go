// karabo-device-server — standalone process hosting one or more Karabo
// devices over the signal/slot fabric.
//
// Usage:
//
//	karabo-device-server <server.yaml>    Run devices from config file
//	karabo-device-server --version        Print version information
//
// The configuration document (see pkg/serverconfig) lists the broker to
// join, the devices to instantiate, and where the alarm service and
// logger assignment map persist their state.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/karabo/internal/klog"
	"github.com/newtron-network/karabo/pkg/adminhttp"
	"github.com/newtron-network/karabo/pkg/device"
	"github.com/newtron-network/karabo/pkg/deviceclass"
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
		fmt.Fprintf(os.Stderr, "usage: karabo-device-server <server.yaml>\n")
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "karabo-device-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := serverconfig.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.BrokerAddress})
	defer rdb.Close()

	supervisorID := "karaboDeviceServer-" + cfg.BrokerTopic
	supervisorBroker := broker.New(rdb, supervisorID)
	supervisor := fabric.New(supervisorBroker, supervisorID, "DeviceServer")
	topo := supervisor.Topology()
	supervisor.SubscribeSignal(ctx, "signalHeartbeat", func(env *fabric.Envelope) {
		instanceID, _ := env.Body.GetString("instanceId")
		classID, _ := env.Body.GetString("classId")
		heartbeatMs, _ := env.Body.GetInt64("heartbeatMs")
		topo.Heartbeat(instanceID, classID, heartbeatMs)
	})
	supervisor.Start(ctx)
	defer supervisor.Stop()

	registry := deviceclass.NewRegistry()

	var devices []*device.Device
	for _, dc := range cfg.Devices {
		ss := fabric.New(broker.New(rdb, dc.InstanceID), dc.InstanceID, dc.ClassID)

		expected, ok := registry.Lookup(dc.ClassID)
		if !ok {
			expected = deviceclass.Generic(dc.Parameters)
		}

		d, err := device.New(ctx, dc.InstanceID, dc.ClassID, ss, expected, dc.InitHash())
		if err != nil {
			return fmt.Errorf("constructing device %s: %w", dc.InstanceID, err)
		}
		d.SetAlarmService(cfg.Alarm.InstanceID)
		d.ServerID = supervisorID

		ss.Start(ctx)
		defer ss.Stop()
		d.RunInitialFunctions(ctx)

		klog.WithInstance(dc.InstanceID).WithField("classId", dc.ClassID).Info("device started")
		devices = append(devices, d)
	}

	adminSrv := &http.Server{
		Addr:    cfg.AdminHTTP.ListenAddr,
		Handler: adminhttp.NewServer(topo, cfg.AdminHTTP.AllowedOrigins),
	}
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.WithField("error", err).Error("admin http server exited")
		}
	}()

	klog.WithField("devices", len(devices)).Info("karabo-device-server running")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return adminSrv.Shutdown(shutdownCtx)
}
