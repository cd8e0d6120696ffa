package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

const shellPrompt = "mstore> "

// lineReader is the prompt source of the shell.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// ShellCmd returns the shell command. in is the input used when stdin is
// not an interactive terminal.
func ShellCmd(a *app, in io.Reader) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Interactive command prompt",
		Long: "Run commands interactively while holding the store lock. Lines are split " +
			"with shell quoting rules. Type 'help' for commands, 'exit' to leave. " +
			"Exits non-zero if any line failed.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execShell(ctx, o, a, in)
		},
	}
}

// errShellFailures is returned when the shell leaves after at least one
// line failed, so scripts piped into it can detect the failure.
var errShellFailures = errors.New("shell: commands failed")

func execShell(ctx context.Context, o *IO, a *app, in io.Reader) error {
	lines := newLineReader(in)
	defer func() { _ = lines.Close() }()

	failed := 0

	done := func() error {
		if failed == 0 {
			return nil
		}

		return fmt.Errorf("%w: %d", errShellFailures, failed)
	}

	for ctx.Err() == nil {
		line, err := lines.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return done()
			}

			return err
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lines.AppendHistory(line)

		argv, err := shellquote.Split(line)
		if err != nil {
			o.ErrPrintln("error:", err)

			failed++

			continue
		}

		switch argv[0] {
		case "exit", "quit", "q":
			return done()
		case "help", "?":
			for _, cmd := range commands(a) {
				o.Println(cmd.HelpLine())
			}

			continue
		case "shell":
			o.ErrPrintln("error: already in a shell")

			failed++

			continue
		}

		lineIO := NewIO(o.out, o.errOut)
		if dispatch(ctx, lineIO, a, nil, argv) != 0 {
			failed++
		}
	}

	return done()
}

func newLineReader(in io.Reader) lineReader {
	if in == os.Stdin && liner.TerminalSupported() {
		return newLinerReader()
	}

	if in == nil {
		in = strings.NewReader("")
	}

	return &scanReader{scanner: bufio.NewScanner(in)}
}

// linerReader is the interactive prompt with history persisted to
// ~/.mstore_history.
type linerReader struct {
	state   *liner.State
	history string
}

func newLinerReader() *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(completeCommand)

	r := &linerReader{state: state}

	if home, err := os.UserHomeDir(); err == nil {
		r.history = filepath.Join(home, ".mstore_history")

		if f, err := os.Open(r.history); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}

	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) { return r.state.Prompt(prompt) }

func (r *linerReader) AppendHistory(line string) { r.state.AppendHistory(line) }

func (r *linerReader) Close() error {
	if r.history != "" {
		if f, err := os.Create(r.history); err == nil {
			_, _ = r.state.WriteHistory(f)
			_ = f.Close()
		}
	}

	return r.state.Close()
}

func completeCommand(line string) []string {
	var out []string

	for _, cmd := range commands(&app{}) {
		if strings.HasPrefix(cmd.Name(), line) {
			out = append(out, cmd.Name())
		}
	}

	return out
}

// scanReader reads lines from a non-interactive input without echoing a
// prompt.
type scanReader struct {
	scanner *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}

	if err := r.scanner.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (r *scanReader) AppendHistory(string) {}

func (r *scanReader) Close() error { return nil }
