package cmd

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rockstor/btrfs-utils/internal/btrfs"
	"github.com/rockstor/btrfs-utils/internal/config"
	"github.com/rockstor/btrfs-utils/internal/contextual"
	"github.com/rockstor/btrfs-utils/internal/disk"
	"github.com/rockstor/btrfs-utils/internal/output"
	"github.com/rockstor/btrfs-utils/internal/system"
	"github.com/rockstor/btrfs-utils/internal/task"
	"github.com/rockstor/btrfs-utils/internal/util"
)

// newRunner is replaced in tests.
var newRunner = func() util.Runner {
	return &util.Exec{}
}

// env is what a subcommand needs to do its work: the collaborators built from the loaded configuration and a
// formatter for the result.
type env struct {
	cfg     *config.Config
	toolset *system.Toolset
	scanner *disk.Scanner
	tasks   *task.Local
	ctrl    *btrfs.Controller

	formatter output.Formatter
	out       io.Writer
}

// newEnv builds the env for cmd. The btrfs tooling is detected once and kept in the command's context.
func newEnv(cmd *cobra.Command, g *globals) (*env, error) {
	ctx := cmd.Context()
	cfg := contextual.Config(ctx)
	if cfg == nil {
		return nil, errors.New("config required in context")
	}

	formatter, err := output.NewFormatter(output.Options{Format: output.Format(g.format), NoHeaders: g.noHeaders})
	if err != nil {
		return nil, err
	}

	runner := newRunner()

	toolset := contextual.Toolset(ctx)
	if toolset == nil {
		toolset = system.Scan(ctx, runner, cfg.Commands.Btrfs)
		cmd.SetContext(contextual.WithToolset(ctx, toolset))
	}
	logrus.WithField("toolset", toolset.String()).Debug("Configuring controller for toolset")

	scanner := disk.NewScanner(runner, cfg)
	tasks := task.NewLocal(runner)

	return &env{
		cfg:       cfg,
		toolset:   toolset,
		scanner:   scanner,
		tasks:     tasks,
		ctrl:      btrfs.NewController(runner, cfg, toolset, scanner, tasks),
		formatter: formatter,
		out:       cmd.OutOrStdout(),
	}, nil
}

// print renders v in the selected output format.
func (e *env) print(v interface{}) error {
	return output.Print(e.out, e.formatter, v)
}

// wait blocks until background tasks submitted by this invocation finish. The process would otherwise exit and
// take them down with it.
func (e *env) wait(id string) {
	logrus.WithField("task", id).Info("Waiting for background task to finish...")
	e.tasks.Wait()
}
