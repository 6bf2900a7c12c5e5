package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/karabo/pkg/hash"
)

var getCmd = &cobra.Command{
	Use:   "get <deviceId> [path]",
	Short: "Fetch a device's current configuration, or one path's value",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := app.ctx()
		defer cancel()

		deviceID := args[0]
		if len(args) == 1 {
			out, err := app.ss.Request(ctx, deviceID, "slotGetConfiguration", hash.New(), app.timeout)
			if err != nil {
				return err
			}
			printHash(out)
			return nil
		}

		paths := hash.New()
		paths.Set("paths", []string{args[1]})
		out, err := app.ss.Request(ctx, deviceID, "slotGetConfigurationSlice", paths, app.timeout)
		if err != nil {
			return err
		}
		v, ok := out.Get(args[1])
		if !ok {
			return fmt.Errorf("path %q not present in reply", args[1])
		}
		fmt.Println(v)
		return nil
	},
}
