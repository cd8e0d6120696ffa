package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/modelstore/pkg/modelstore"
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags.
	// The FlagSet name is not used - command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "mstore" in help.
	// Includes the command name and arguments/flags.
	// Examples: "show <slot>", "cp <src> <dst>", "ls [flags]"
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-22s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help output for "mstore <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: mstore", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command. Returns exit code.
// Handles error printing internally for consistent output ordering.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)
			return 0
		}
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)
		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", errorText(err))
		return 1
	}

	return 0
}

// errorText prefixes err with its short UI message when it maps to one.
func errorText(err error) string {
	msg := modelstore.Message(err)
	if msg == err.Error() {
		return msg
	}

	return msg + ": " + err.Error()
}

// Context-free argument checks shared by commands.
var (
	errSlotRequired = errors.New("slot is required")
	errTooManyArgs  = errors.New("too many arguments")
)

// parseSlot parses a 1-based slot number as shown to users and returns the
// 0-based index.
func parseSlot(arg string, slots int) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > slots {
		return 0, fmt.Errorf("invalid slot %q: want 1-%d", arg, slots)
	}

	return n - 1, nil
}

// exactArgs checks that args holds exactly n positional arguments.
func exactArgs(args []string, n int, missing error) error {
	switch {
	case len(args) < n:
		return missing
	case len(args) > n:
		return fmt.Errorf("%w: %s", errTooManyArgs, strings.Join(args[n:], " "))
	}

	return nil
}
