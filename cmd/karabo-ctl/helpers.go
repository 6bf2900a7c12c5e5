package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/newtron-network/karabo/pkg/cli"
	"github.com/newtron-network/karabo/pkg/hash"
)

// parseAssignments turns a "key=value" argument list into a Hash,
// coercing each value to bool/int64/float64 where it parses cleanly and
// falling back to string otherwise — the same loose coercion
// pkg/validator applies on the device side, done here so `karabo-ctl set
// exposureTime=0.5` doesn't require quoting numeric literals.
func parseAssignments(args []string) (*hash.Hash, error) {
	h := hash.New()
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", arg)
		}
		h.Set(key, coerce(value))
	}
	return h, nil
}

func coerce(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// emptyBody returns a fresh empty Hash, for slots that ignore their body.
func emptyBody() *hash.Hash { return hash.New() }

// printHash renders a Hash as a column-aligned PATH/VALUE table, in
// path order, for get/call/schema output. Width-constrained to the
// terminal when stdout is a tty (see pkg/cli.Table).
func printHash(h *hash.Hash) {
	t := cli.NewTable("PATH", "VALUE")
	for _, path := range h.Paths() {
		v, _ := h.Get(path)
		t.Row(path, fmt.Sprintf("%v", v))
	}
	t.Flush()
}
