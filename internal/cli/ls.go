package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/modelstore/pkg/modelstore"
)

// LsCmd returns the ls command.
func LsCmd(a *app) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.BoolP("all", "a", false, "Include empty slots")

	return &Command{
		Flags: fs,
		Usage: "ls [flags]",
		Short: "List model slots",
		Long:  "List occupied slots with name, file size and format version. Slot numbers are 1-based.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			err := exactArgs(args, 0, nil)
			if err != nil {
				return err
			}

			all, _ := fs.GetBool("all")

			return execLs(io, a, all)
		},
	}
}

func execLs(io *IO, a *app, all bool) error {
	headers := a.store.Headers()

	for slot := range headers.Len() {
		err := headers.Refresh(slot)
		if err != nil {
			io.Warn(modelstore.Message(err)+" in slot "+slotLabel(slot), "restore it from a backup or remove it with 'mstore rm'")
		}

		size, err := a.store.ModelSize(slot)
		if err != nil {
			return err
		}

		h := headers.Header(slot)

		switch {
		case !h.Empty():
			io.Printf("%-3s %-16s %6d  v%d\n", slotLabel(slot), headers.DisplayName(slot), size, h.Version)
		case size > 0:
			io.Printf("%-3s %-16s %6d  ?\n", slotLabel(slot), "(unreadable)", size)
		case all:
			io.Printf("%-3s %s\n", slotLabel(slot), "-")
		}
	}

	return nil
}
