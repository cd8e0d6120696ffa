package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"
)

var errRestoreArgs = errors.New("slot and backup name are required")

// BackupCmd returns the backup command.
func BackupCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("backup", flag.ContinueOnError),
		Usage: "backup <slot>",
		Short: "Back up a model to media",
		Long:  "Flush pending writes and copy the model in <slot> to the media export directory, named after the model.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			err := exactArgs(args, 1, errSlotRequired)
			if err != nil {
				return err
			}

			slot, err := parseSlot(args[0], a.store.Layout().Slots)
			if err != nil {
				return err
			}

			path, err := a.mgr.Backup(slot)
			if err != nil {
				return err
			}

			io.Println(path)

			return nil
		},
	}
}

// RestoreCmd returns the restore command.
func RestoreCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("restore", flag.ContinueOnError),
		Usage: "restore <slot> <name>",
		Short: "Restore a model from media",
		Long: "Restore backup <name> from the media export directory into <slot>. " +
			"Backups in the older compressed format are converted.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			err := exactArgs(args, 2, errRestoreArgs)
			if err != nil {
				return err
			}

			slot, err := parseSlot(args[0], a.store.Layout().Slots)
			if err != nil {
				return err
			}

			err = a.mgr.Restore(slot, args[1])
			if err != nil {
				return err
			}

			io.Println("restored", args[1], "->", args[0])

			return nil
		},
	}
}

// BackupsCmd returns the backups command.
func BackupsCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("backups", flag.ContinueOnError),
		Usage: "backups",
		Short: "List backups on media",
		Exec: func(_ context.Context, io *IO, args []string) error {
			err := exactArgs(args, 0, nil)
			if err != nil {
				return err
			}

			names, err := a.mgr.Backups()
			if err != nil {
				return err
			}

			for _, name := range names {
				io.Println(name)
			}

			return nil
		},
	}
}
