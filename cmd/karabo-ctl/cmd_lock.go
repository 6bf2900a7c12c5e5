package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/karabo/pkg/lock"
	"github.com/newtron-network/karabo/pkg/schema"
)

var lockCmd = &cobra.Command{
	Use:   "lock <deviceId>",
	Short: "Acquire the distributed lock on a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.requireLevel("lock", schema.AccessLevelOperator); err != nil {
			return err
		}
		ctx, cancel := app.ctx()
		defer cancel()
		holder := fmt.Sprintf("karabo-ctl-%d", os.Getpid())
		l, err := lock.Acquire(ctx, app.ss, args[0], holder, false)
		if err != nil {
			return err
		}
		fmt.Printf("locked %s as %s\n", l.DeviceID(), l.Holder())
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <deviceId>",
	Short: "Release a device's distributed lock via slotClearLock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.requireLevel("unlock", schema.AccessLevelOperator); err != nil {
			return err
		}
		ctx, cancel := app.ctx()
		defer cancel()
		_, err := app.ss.Request(ctx, args[0], "slotClearLock", emptyBody(), app.timeout)
		if err != nil {
			return err
		}
		fmt.Println("unlocked")
		return nil
	},
}
