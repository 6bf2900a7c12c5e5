package main

import (
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/newtron-network/karabo/pkg/hash"
)

var queryCmd = &cobra.Command{
	Use:   "query <deviceId> <jq-filter>",
	Short: "Run a jq-style filter over a device's current configuration",
	Long: `Fetches slotGetConfiguration and pipes the result (projected to
plain JSON-shaped values) through a jq filter, e.g.:

  karabo-ctl query cam1 '.exposureTime'
  karabo-ctl query cam1 '{state, gain}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := gojq.Parse(args[1])
		if err != nil {
			return fmt.Errorf("parsing jq filter: %w", err)
		}

		ctx, cancel := app.ctx()
		defer cancel()
		cfg, err := app.ss.Request(ctx, args[0], "slotGetConfiguration", hash.New(), app.timeout)
		if err != nil {
			return err
		}

		iter := query.Run(cfg.ToMap())
		for {
			v, ok := iter.Next()
			if !ok {
				return nil
			}
			if err, ok := v.(error); ok {
				return err
			}
			fmt.Println(v)
		}
	},
}
