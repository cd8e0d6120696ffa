package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/modelstore/pkg/modelstore"
)

var (
	errTwoLocations  = errors.New("source and destination are required")
	errTwoSlots      = errors.New("two slots are required")
	errFormatConfirm = errors.New("format deletes every record; pass --yes to confirm")
)

// CpCmd returns the cp command.
func CpCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("cp", flag.ContinueOnError),
		Usage: "cp <src> <dst>",
		Short: "Copy a model record",
		Long: "Copy a framed model record byte for byte. Each side is a slot number " +
			"or a file path; anything that is not a number is a path.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			err := exactArgs(args, 2, errTwoLocations)
			if err != nil {
				return err
			}

			src, err := parseLocation(args[0], a.store.Layout().Slots)
			if err != nil {
				return err
			}

			dst, err := parseLocation(args[1], a.store.Layout().Slots)
			if err != nil {
				return err
			}

			err = a.mgr.Copy(src, dst)
			if err != nil {
				return err
			}

			io.Println("copied", args[0], "->", args[1])

			return nil
		},
	}
}

// parseLocation reads a slot number, or falls back to a path.
func parseLocation(arg string, slots int) (modelstore.Location, error) {
	if _, err := strconv.Atoi(arg); err != nil {
		return modelstore.PathLocation(arg), nil
	}

	slot, err := parseSlot(arg, slots)
	if err != nil {
		return modelstore.Location{}, err
	}

	return modelstore.SlotLocation(slot), nil
}

// SwapCmd returns the swap command.
func SwapCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("swap", flag.ContinueOnError),
		Usage: "swap <slot> <slot>",
		Short: "Exchange two slots",
		Long: "Exchange two slots. If a previous swap was interrupted, running the same swap " +
			"again, in either order, completes it. Other swaps are refused until then.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			err := exactArgs(args, 2, errTwoSlots)
			if err != nil {
				return err
			}

			x, err := parseSlot(args[0], a.store.Layout().Slots)
			if err != nil {
				return err
			}

			y, err := parseSlot(args[1], a.store.Layout().Slots)
			if err != nil {
				return err
			}

			err = a.mgr.Swap(x, y)

			var pending *modelstore.SwapPendingError
			if errors.As(err, &pending) {
				return fmt.Errorf("%w; finish it with 'mstore swap %d %d'", err, pending.A+1, pending.B+1)
			}

			if err != nil {
				return err
			}

			io.Println("swapped", args[0], "<->", args[1])

			return nil
		},
	}
}

// RmCmd returns the rm command.
func RmCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("rm", flag.ContinueOnError),
		Usage: "rm <slot>",
		Short: "Delete a model",
		Exec: func(_ context.Context, io *IO, args []string) error {
			err := exactArgs(args, 1, errSlotRequired)
			if err != nil {
				return err
			}

			slot, err := parseSlot(args[0], a.store.Layout().Slots)
			if err != nil {
				return err
			}

			err = a.store.DeleteModel(slot)
			if err != nil {
				return err
			}

			io.Println("deleted", args[0])

			return nil
		},
	}
}

// FormatCmd returns the format command.
func FormatCmd(a *app) *Command {
	fs := flag.NewFlagSet("format", flag.ContinueOnError)
	fs.Bool("yes", false, "Confirm deleting every record")

	return &Command{
		Flags: fs,
		Usage: "format --yes",
		Short: "Delete every record",
		Long:  "Delete every file under the storage root. There is no undo; back up first.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			err := exactArgs(args, 0, nil)
			if err != nil {
				return err
			}

			if yes, _ := fs.GetBool("yes"); !yes {
				return errFormatConfirm
			}

			err = a.mgr.FormatAll()
			if err != nil {
				return err
			}

			io.Println("formatted", a.store.Paths().Root())

			return nil
		},
	}
}
