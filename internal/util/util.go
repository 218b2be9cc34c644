// Package util provides the command runner used to drive btrfs and the OS device tools.
package util

//go:generate mockgen -destination mocks/mock_util.go github.com/rockstor/btrfs-utils/internal/util Runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// CommandOutput wraps the output from an exec command as strings along with its return code.
type CommandOutput struct {
	Stdout     string
	Stderr     string
	ReturnCode int
}

// StdoutLines splits Stdout into lines. A trailing newline does not produce an empty final line.
func (o CommandOutput) StdoutLines() []string {
	return splitLines(o.Stdout)
}

// StderrLines splits Stderr into lines. A trailing newline does not produce an empty final line.
func (o CommandOutput) StderrLines() []string {
	return splitLines(o.Stderr)
}

// FirstStderr returns the first stderr line with surrounding whitespace removed, or "" when the
// command wrote nothing to stderr.
func (o CommandOutput) FirstStderr() string {
	lines := o.StderrLines()
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[0])
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// CommandError is returned when an executed command exits with a non-zero return code and the
// caller did not allow the failure.
type CommandError struct {
	Cmd    []string
	Output CommandOutput
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %v exited with code %d, stderr: [%s]",
		e.Cmd, e.Output.ReturnCode, strings.TrimSpace(e.Output.Stderr))
}

// ReturnCode is a convenience accessor for the failed command's exit code.
func (e *CommandError) ReturnCode() int {
	return e.Output.ReturnCode
}

// FirstStderr is a convenience accessor for the failed command's first stderr line.
func (e *CommandError) FirstStderr() string {
	return e.Output.FirstStderr()
}

// AsCommandError unwraps err into a *CommandError when possible.
func AsCommandError(err error) (*CommandError, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Options tunes a single Runner invocation.
type Options struct {
	// Log records a failing command at error level along with its output.
	Log bool
	// AllowFail suppresses the CommandError for a non-zero exit; the code is still reported in
	// CommandOutput.ReturnCode.
	AllowFail bool
	// Stdin is passed to the command when set.
	Stdin io.Reader
	// Env is appended to the inherited environment.
	Env []string
}

// Runner outlines the functionality necessary for executing an external program.
type Runner interface {
	// Run executes the command c and returns its captured output. Failing to start c is always an
	// error; a non-zero exit is an error of type *CommandError unless opts.AllowFail is set.
	Run(ctx context.Context, c []string, opts Options) (CommandOutput, error)
}

// Exec is the Runner implementation backed by os/exec.
type Exec struct{}

// Type assertion to ensure Exec implements the Runner interface.
var _ Runner = (*Exec)(nil)

// Run executes the command and returns Stdout, Stderr and the return code.
func (e *Exec) Run(ctx context.Context, c []string, opts Options) (CommandOutput, error) {
	// Check the empty struct case ([]string{}) for the command
	if len(c) == 0 {
		return CommandOutput{}, fmt.Errorf("must provide a command")
	}

	cmd := exec.CommandContext(ctx, c[0], c[1:]...)
	var stdoutb, stderrb bytes.Buffer
	cmd.Stdout = &stdoutb
	cmd.Stderr = &stderrb

	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, opts.Env...)

	logrus.WithField("cmd", c).Debug("Running command")

	if err := cmd.Start(); err != nil {
		return CommandOutput{Stdout: stdoutb.String(), Stderr: stderrb.String(), ReturnCode: -1},
			fmt.Errorf("error starting specified command: %w", err)
	}

	out := CommandOutput{}
	err := cmd.Wait()
	out.Stdout = stdoutb.String()
	out.Stderr = stderrb.String()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return out, fmt.Errorf("error waiting for specified command to exit: %w", err)
		}
		out.ReturnCode = exitErr.ExitCode()
	}

	return checkResult(c, out, opts)
}

// checkResult applies the logging and failure policy of opts to a finished command.
func checkResult(c []string, out CommandOutput, opts Options) (CommandOutput, error) {
	if out.ReturnCode == 0 {
		return out, nil
	}

	if opts.Log {
		logrus.WithFields(logrus.Fields{
			"cmd":    c,
			"rc":     out.ReturnCode,
			"stdout": strings.TrimSpace(out.Stdout),
			"stderr": strings.TrimSpace(out.Stderr),
		}).Error("Command returned a non-zero code")
	}

	if opts.AllowFail {
		return out, nil
	}

	return out, &CommandError{Cmd: c, Output: out}
}

// ExtractKeyValues parses lines of the form "KEY<sep>value" and returns the values for the requested
// keys. Lines without the separator are skipped.
//
// Command output from "udevadm info --query=property" should look like:
//
//	DEVNAME=/dev/sda
//	DEVTYPE=disk
//	ID_SERIAL_SHORT=WD-WMC4N0912345
//	DEVLINKS=/dev/disk/by-id/ata-WDC_WD30EFRX_WD-WMC4N0912345 /dev/disk/by-path/pci-0000:00:1f.2-ata-1
//
// When keys is empty every key is returned.
func ExtractKeyValues(text []byte, sep string, keys []string) map[string]string {
	extracted := map[string]string{}

	lines := bytes.Split(text, []byte("\n"))
	for _, kvLine := range lines {
		kv := bytes.SplitN(bytes.TrimSpace(kvLine), []byte(sep), 2)

		if len(kv) < 2 || len(kv[0]) == 0 {
			continue
		}

		if len(keys) == 0 {
			extracted[string(kv[0])] = string(kv[1])
			continue
		}

		for _, key := range keys {
			if bytes.EqualFold(kv[0], []byte(key)) {
				extracted[key] = string(kv[1])
			}
		}
	}

	return extracted
}
