package main

import (
	"github.com/spf13/cobra"

	"github.com/newtron-network/karabo/pkg/schema"
)

var callCmd = &cobra.Command{
	Use:   "call <deviceId> <slotName> [key=value ...]",
	Short: "Invoke an arbitrary slot on a device",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.requireLevel("call", schema.AccessLevelUser); err != nil {
			return err
		}
		body, err := parseAssignments(args[2:])
		if err != nil {
			return err
		}
		ctx, cancel := app.ctx()
		defer cancel()
		out, err := app.ss.Request(ctx, args[0], args[1], body, app.timeout)
		if err != nil {
			return err
		}
		printHash(out)
		return nil
	},
}
