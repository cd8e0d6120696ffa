package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/modelstore/internal/config"
	"github.com/calvinalkan/modelstore/pkg/fs"
)

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. A signal on it cancels the command context; the shell
// stops at the next prompt.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	globals := flag.NewFlagSet("mstore", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	root := globals.String("root", "", "Storage root `dir`")
	mediaDir := globals.String("media", "", "Removable media `dir`")
	mounted := globals.Bool("mounted", false, "Treat --media as a mount point")
	logLevel := globals.String("log-level", "", "Log `level` (debug|info|warning|error)")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globals.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals)

		return 1
	}

	rest := globals.Args()
	if *help || len(rest) == 0 {
		printUsage(out, globals)

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDir:    *workDir,
		ConfigPath: *configPath,
		Env:        env,
		Overrides: config.Config{
			Root:         *root,
			MediaDir:     *mediaDir,
			MediaMounted: *mounted,
			LogLevel:     *logLevel,
		},
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	o := NewIO(out, errOut)

	if rest[0] == "print-config" {
		return runCommand(ctx, o, PrintConfigCmd(&cfg), rest[1:])
	}

	a, err := openApp(&cfg, fs.NewReal(), newLogger(errOut, cfg.Level()))
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	code := dispatch(ctx, o, a, in, rest)

	closeErr := a.close()
	if closeErr != nil {
		fprintln(errOut, "error:", errorText(closeErr))

		return 1
	}

	return code
}

// dispatch runs one command line against an open app.
func dispatch(ctx context.Context, o *IO, a *app, in io.Reader, argv []string) int {
	name := argv[0]

	if name == "shell" {
		return runCommand(ctx, o, ShellCmd(a, in), argv[1:])
	}

	cmd := lookup(a, name)
	if cmd == nil {
		o.ErrPrintln("error:", fmt.Errorf("%w: %s", errUnknownCommand, name))

		return 1
	}

	return runCommand(ctx, o, cmd, argv[1:])
}

func runCommand(ctx context.Context, o *IO, cmd *Command, args []string) int {
	code := cmd.Run(ctx, o, args)
	if code != 0 {
		return code
	}

	return o.Finish()
}

var errUnknownCommand = errors.New("unknown command")

// commands returns fresh instances of every store command. Flag sets are
// not reusable, so the shell calls this once per line.
func commands(a *app) []*Command {
	return []*Command{
		LsCmd(a),
		ShowCmd(a),
		CpCmd(a),
		SwapCmd(a),
		RmCmd(a),
		FormatCmd(a),
		BackupCmd(a),
		RestoreCmd(a),
		BackupsCmd(a),
		SettingsCmd(a),
		RenameCmd(a),
		InitCmd(a),
	}
}

func lookup(a *app, name string) *Command {
	for _, cmd := range commands(a) {
		if cmd.Name() == name {
			return cmd
		}
	}

	return nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet) {
	fprintln(w, `mstore - model and settings storage tool

Usage: mstore [options] <command> [args]

Options:`)

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})
	fprintln(w, strings.TrimRight(buf.String(), "\n"))

	fprintln(w, "\nCommands:")

	for _, cmd := range commands(&app{cfg: &config.Config{}}) {
		fprintln(w, cmd.HelpLine())
	}

	fprintln(w, ShellCmd(nil, nil).HelpLine())
	fprintln(w, PrintConfigCmd(nil).HelpLine())
}
