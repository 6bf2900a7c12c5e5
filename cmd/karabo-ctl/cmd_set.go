package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/karabo/pkg/schema"
)

var setCmd = &cobra.Command{
	Use:   "set <deviceId> key=value [key=value ...]",
	Short: "Reconfigure one or more of a device's parameters",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.requireLevel("set", schema.AccessLevelOperator); err != nil {
			return err
		}
		candidate, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		ctx, cancel := app.ctx()
		defer cancel()
		reply, err := app.ss.Request(ctx, args[0], "slotReconfigure", candidate, app.timeout)
		if err != nil {
			return err
		}
		ok, _ := reply.GetBool("success")
		reason, _ := reply.GetString("reason")
		if !ok {
			return fmt.Errorf("reconfigure rejected: %s", reason)
		}
		fmt.Println("ok")
		return nil
	},
}
