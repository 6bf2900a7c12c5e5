// karabo-ctl — an operator CLI for a running Karabo device fabric.
//
// Usage:
//
//	karabo-ctl get <deviceId> [path]
//	karabo-ctl set <deviceId> key=value [key=value ...]
//	karabo-ctl call <deviceId> <slotName> [key=value ...]
//	karabo-ctl lock <deviceId>
//	karabo-ctl unlock <deviceId>
//	karabo-ctl schema <deviceId> [--current-state]
//	karabo-ctl alarms dump|ack <id>
//	karabo-ctl query <deviceId> <jq-filter>
//	karabo-ctl shell <deviceId>
//
// Every subcommand opens a short-lived SignalSlotable against the
// broker, issues its request(s), and exits — a one-shot process per
// invocation rather than a persistent client.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/karabo/pkg/access"
	"github.com/newtron-network/karabo/pkg/fabric"
	"github.com/newtron-network/karabo/pkg/fabric/broker"
	"github.com/newtron-network/karabo/pkg/schema"
	"github.com/newtron-network/karabo/pkg/serverconfig"
	"github.com/newtron-network/karabo/pkg/version"
)

// App holds CLI state shared across all commands.
type App struct {
	brokerAddr      string
	timeout         time.Duration
	credentialsFile string
	username        string
	password        string

	session *access.Session

	rdb *redis.Client
	ss  *fabric.SignalSlotable
}

// authenticate loads app.credentialsFile (if set) and authenticates
// app.username/app.password against it, populating app.session. With no
// credentials file configured, every command runs unauthenticated and
// requireLevel is a no-op — matching a single-operator lab deployment
// that never configured accounts.
func (a *App) authenticate() error {
	if a.credentialsFile == "" {
		return nil
	}
	data, err := os.ReadFile(a.credentialsFile)
	if err != nil {
		return fmt.Errorf("reading credentials file: %w", err)
	}
	var doc struct {
		Credentials []serverconfig.CredentialConfig `yaml:"credentials"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing credentials file: %w", err)
	}
	cfg := &serverconfig.Config{Credentials: doc.Credentials}
	store, err := cfg.AccessStore()
	if err != nil {
		return err
	}
	level, err := store.Authenticate(a.username, a.password)
	if err != nil {
		return err
	}
	a.session = &access.Session{Username: a.username, Level: level}
	return nil
}

// requireLevel gates a mutating command against the authenticated
// session's access level. With no credentials file configured (no
// session), every level is permitted.
func (a *App) requireLevel(command string, required schema.AccessLevel) error {
	if a.session == nil {
		return nil
	}
	return a.session.Gate(command, required)
}

var app = &App{}

var rootCmd = &cobra.Command{
	Use:   "karabo-ctl",
	Short: "Operator CLI for a Karabo device fabric",
	Version: version.Info(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		if err := app.authenticate(); err != nil {
			return err
		}
		app.rdb = redis.NewClient(&redis.Options{Addr: app.brokerAddr})
		b := broker.New(app.rdb, "karabo-ctl")
		app.ss = fabric.New(b, fmt.Sprintf("karabo-ctl-%d", os.Getpid()), "Client")
		app.ss.Start(context.Background())
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app.ss != nil {
			app.ss.Stop()
		}
		if app.rdb != nil {
			return app.rdb.Close()
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&app.brokerAddr, "broker", "127.0.0.1:6379", "broker (Redis) address")
	rootCmd.PersistentFlags().DurationVar(&app.timeout, "timeout", 5*time.Second, "request timeout")
	rootCmd.PersistentFlags().StringVar(&app.credentialsFile, "credentials", "", "operator credentials YAML file (unset: run unauthenticated)")
	rootCmd.PersistentFlags().StringVar(&app.username, "user", "", "operator username, requires --credentials")
	rootCmd.PersistentFlags().StringVar(&app.password, "password", "", "operator password, requires --user")

	rootCmd.AddCommand(getCmd, setCmd, callCmd, lockCmd, unlockCmd, schemaCmd, alarmsCmd, queryCmd, shellCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ctx returns a context bounded by the configured request timeout.
func (a *App) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}
