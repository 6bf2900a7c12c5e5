package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/karabo/pkg/hash"
)

var schemaOnlyCurrentState bool

var schemaCmd = &cobra.Command{
	Use:   "schema <deviceId>",
	Short: "Fetch a device's schema as XML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := hash.New()
		body.Set("onlyCurrentState", schemaOnlyCurrentState)

		ctx, cancel := app.ctx()
		defer cancel()
		out, err := app.ss.Request(ctx, args[0], "slotGetSchema", body, app.timeout)
		if err != nil {
			return err
		}
		xmlText, err := out.GetString("schemaXml")
		if err != nil {
			return err
		}
		fmt.Println(xmlText)
		return nil
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaOnlyCurrentState, "current-state", false, "restrict to elements writable/callable in the device's current state")
}
