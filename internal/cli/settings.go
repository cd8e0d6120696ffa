package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/modelstore/pkg/modelstore"
	"github.com/calvinalkan/modelstore/pkg/modelstore/frame"
)

var (
	errNoSettings    = errors.New("no settings stored; run 'mstore init' first")
	errRenameArgs    = errors.New("slot and name are required")
	errBadAssignment = errors.New("--set wants OFFSET=HEXBYTES")
)

// SettingsCmd returns the settings command.
func SettingsCmd(a *app) *Command {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	fs.StringArray("set", nil, "Patch bytes at `OFFSET=HEXBYTES` (repeatable)")

	return &Command{
		Flags: fs,
		Usage: "settings [flags]",
		Short: "Show or patch general settings",
		Long:  "Print the general settings record as a hex dump. With --set, patch bytes and save first.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			err := exactArgs(args, 0, nil)
			if err != nil {
				return err
			}

			sets, _ := fs.GetStringArray("set")

			return execSettings(io, a, sets)
		},
	}
}

func execSettings(io *IO, a *app, sets []string) error {
	payload, version, err := a.store.LoadSettings()
	if errors.Is(err, modelstore.ErrNotFound) {
		return errNoSettings
	}

	if err != nil {
		return err
	}

	if len(sets) > 0 {
		for _, set := range sets {
			err := patch(payload, set)
			if err != nil {
				return err
			}
		}

		copy(a.pending.Settings, payload)
		a.pending.MarkSettings()

		err = a.sched.Checkpoint(false)
		if err != nil {
			return err
		}

		version = frame.VersionCurrent
	}

	io.Println("version=" + strconv.Itoa(int(version)))
	io.Printf("%s", hex.Dump(payload))

	return nil
}

// patch applies one OFFSET=HEXBYTES assignment to buf.
func patch(buf []byte, assignment string) error {
	offStr, hexStr, ok := strings.Cut(assignment, "=")
	if !ok {
		return fmt.Errorf("%w: %q", errBadAssignment, assignment)
	}

	off, err := strconv.ParseInt(offStr, 0, 32)
	if err != nil || off < 0 {
		return fmt.Errorf("%w: bad offset %q", errBadAssignment, offStr)
	}

	data, err := hex.DecodeString(hexStr)
	if err != nil {
		return fmt.Errorf("%w: %w", errBadAssignment, err)
	}

	if int(off)+len(data) > len(buf) {
		return fmt.Errorf("%w: %d bytes at %d overflow %d-byte record", errBadAssignment, len(data), off, len(buf))
	}

	copy(buf[off:], data)

	return nil
}

// RenameCmd returns the rename command.
func RenameCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("rename", flag.ContinueOnError),
		Usage: "rename <slot> <name>",
		Short: "Change a model name",
		Long:  "Load the model in <slot>, set its name (truncated to the name field) and save it.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			err := exactArgs(args, 2, errRenameArgs)
			if err != nil {
				return err
			}

			slot, err := parseSlot(args[0], a.store.Layout().Slots)
			if err != nil {
				return err
			}

			_, err = a.sched.SwitchModel(slot)
			if err != nil {
				return err
			}

			field := a.pending.Model[:a.store.Layout().NameSize]
			clear(field)
			copy(field, args[1])
			a.pending.MarkModel()

			err = a.sched.Checkpoint(true)
			if err != nil {
				return err
			}

			io.Println(slotLabel(slot), a.store.Headers().DisplayName(slot))

			return nil
		},
	}
}

// InitCmd returns the init command.
func InitCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("init", flag.ContinueOnError),
		Usage: "init",
		Short: "Check settings, seed defaults if unusable",
		Long: "Load the general settings the way the radio does at power-on. If they are absent " +
			"or unreadable, format the store and write default settings and a default model in slot 1.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			err := exactArgs(args, 0, nil)
			if err != nil {
				return err
			}

			res, err := a.mgr.Boot(zeroDefaults{layout: a.store.Layout()})
			if err != nil {
				return err
			}

			if res.Defaulted {
				io.Println("initialized", a.store.Paths().Root())

				return nil
			}

			io.Println("settings ok, version", res.Version)

			return nil
		},
	}
}
