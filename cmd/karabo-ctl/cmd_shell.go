package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/schema"
)

// shell is an interactive slot-invocation REPL bound to one device.
type shell struct {
	deviceID string
	reader   *bufio.Reader
}

var shellCmd = &cobra.Command{
	Use:   "shell <deviceId>",
	Short: "Interactive REPL for get/set/call against one device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := &shell{deviceID: args[0], reader: bufio.NewReader(os.Stdin)}
		return s.run()
	},
}

func (s *shell) run() error {
	fmt.Printf("Connected to %s. Type 'help' for available commands.\n", s.deviceID)
	for {
		fmt.Printf("%s> ", s.deviceID)
		line, err := s.reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, rest := fields[0], fields[1:]

		switch cmd {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			s.help()
		case "get":
			s.get(rest)
		case "set":
			s.set(rest)
		case "call":
			s.call(rest)
		case "state":
			s.call([]string{"slotGetConfigurationSlice"})
		default:
			fmt.Printf("unknown command %q (type 'help')\n", cmd)
		}
	}
}

func (s *shell) help() {
	fmt.Println(`commands:
  get [path]              fetch configuration (whole device, or one path)
  set key=value [...]     reconfigure one or more parameters
  call <slot> [key=value...]  invoke an arbitrary slot
  quit                     leave the shell`)
}

func (s *shell) get(args []string) {
	ctx, cancel := app.ctx()
	defer cancel()
	if len(args) == 0 {
		out, err := app.ss.Request(ctx, s.deviceID, "slotGetConfiguration", hash.New(), app.timeout)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		printHash(out)
		return
	}
	body := hash.New()
	body.Set("paths", []string{args[0]})
	out, err := app.ss.Request(ctx, s.deviceID, "slotGetConfigurationSlice", body, app.timeout)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	printHash(out)
}

func (s *shell) set(args []string) {
	if err := app.requireLevel("set", schema.AccessLevelOperator); err != nil {
		fmt.Println("error:", err)
		return
	}
	candidate, err := parseAssignments(args)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	ctx, cancel := app.ctx()
	defer cancel()
	reply, err := app.ss.Request(ctx, s.deviceID, "slotReconfigure", candidate, app.timeout)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	ok, _ := reply.GetBool("success")
	reason, _ := reply.GetString("reason")
	if !ok {
		fmt.Println("rejected:", reason)
		return
	}
	fmt.Println("ok")
}

func (s *shell) call(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: call <slot> [key=value...]")
		return
	}
	if err := app.requireLevel("call", schema.AccessLevelUser); err != nil {
		fmt.Println("error:", err)
		return
	}
	body, err := parseAssignments(args[1:])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	ctx, cancel := app.ctx()
	defer cancel()
	out, err := app.ss.Request(ctx, s.deviceID, args[0], body, app.timeout)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	printHash(out)
}
