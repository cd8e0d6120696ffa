package cli

import (
	"context"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/modelstore/internal/config"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, cfg)
		},
	}
}

func execPrintConfig(io *IO, cfg *config.Config) error {
	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("root=" + cfg.RootAbs)

	if cfg.MediaDirAbs != "" {
		io.Println("media_dir=" + cfg.MediaDirAbs)
		io.Println("media_mounted=" + strconv.FormatBool(cfg.MediaMounted))
	}

	io.Println("export_dir=" + cfg.ExportDir)
	io.Println("slots=" + strconv.Itoa(cfg.Slots))
	io.Println("settings_size=" + strconv.Itoa(cfg.SettingsSize))
	io.Println("model_size=" + strconv.Itoa(cfg.ModelSize))
	io.Println("header_size=" + strconv.Itoa(cfg.HeaderSize))
	io.Println("name_size=" + strconv.Itoa(cfg.NameSize))
	io.Println("log_level=" + cfg.LogLevel)

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}
