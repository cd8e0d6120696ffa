package cli

import (
	"context"
	"encoding/hex"
	"strconv"

	flag "github.com/spf13/pflag"
)

// ShowCmd returns the show command.
func ShowCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("show", flag.ContinueOnError),
		Usage: "show <slot>",
		Short: "Show a model record",
		Long:  "Print the name, version and a hex dump of the model payload in <slot>.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			return execShow(io, a, args)
		},
	}
}

func execShow(io *IO, a *app, args []string) error {
	err := exactArgs(args, 1, errSlotRequired)
	if err != nil {
		return err
	}

	slot, err := parseSlot(args[0], a.store.Layout().Slots)
	if err != nil {
		return err
	}

	payload, version, err := a.store.LoadModel(slot)
	if err != nil {
		return err
	}

	io.Println("slot=" + slotLabel(slot))
	io.Println("name=" + a.store.Headers().DisplayName(slot))
	io.Println("version=" + strconv.Itoa(int(version)))
	io.Println("size=" + strconv.Itoa(len(payload)))
	io.Println()
	io.Printf("%s", hex.Dump(payload))

	return nil
}

func slotLabel(slot int) string {
	return strconv.Itoa(slot + 1)
}
