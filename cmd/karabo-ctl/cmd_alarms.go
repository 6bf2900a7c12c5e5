package main

import (
	"github.com/spf13/cobra"

	"github.com/newtron-network/karabo/pkg/cli"
	"github.com/newtron-network/karabo/pkg/device"
	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/schema"
)

var alarmsInstance string

var alarmsCmd = &cobra.Command{
	Use:   "alarms",
	Short: "Inspect and acknowledge alarm-service entries",
}

var alarmsDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the current alarm table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := app.ctx()
		defer cancel()
		out, err := app.ss.Request(ctx, alarmsInstance, "slotRequestAlarmDump", hash.New(), app.timeout)
		if err != nil {
			return err
		}
		t := cli.NewTable("ID", "DEVICE", "PROPERTY", "TYPE", "SEVERITY")
		for _, id := range out.Keys() {
			row, err := out.GetHash(id)
			if err != nil {
				continue
			}
			entry, err := row.GetHash("entry")
			if err != nil {
				continue
			}
			deviceID, _ := entry.GetString("deviceId")
			property, _ := entry.GetString("property")
			alarmType, _ := entry.GetString("alarmType")
			severity, _ := entry.GetString("severity")
			switch severity {
			case "ALARM":
				severity = cli.Red(severity)
			case "WARN":
				severity = cli.Yellow(severity)
			}
			t.Row(id, deviceID, property, alarmType, severity)
		}
		t.Flush()
		return nil
	},
}

var alarmsAckCmd = &cobra.Command{
	Use:   "ack <id> [id...]",
	Short: "Acknowledge one or more alarm entries by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.requireLevel("alarms ack", schema.AccessLevelUser); err != nil {
			return err
		}
		body := hash.New()
		for _, id := range args {
			body.Set(id, true)
		}
		ctx, cancel := app.ctx()
		defer cancel()
		_, err := app.ss.Request(ctx, alarmsInstance, "slotAcknowledgeAlarm", body, app.timeout)
		return err
	},
}

func init() {
	alarmsCmd.PersistentFlags().StringVar(&alarmsInstance, "instance", device.DefaultAlarmServiceInstanceID, "alarm service instance id")
	alarmsCmd.AddCommand(alarmsDumpCmd, alarmsAckCmd)
}
