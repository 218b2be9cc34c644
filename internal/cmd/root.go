// Package cmd provides the functionality necessary for CLI commands in btrfs-utils.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rockstor/btrfs-utils/internal/build"
	"github.com/rockstor/btrfs-utils/internal/config"
	"github.com/rockstor/btrfs-utils/internal/contextual"
	"github.com/rockstor/btrfs-utils/internal/output"
)

const shortLicenseText = "Distributed under the GNU General Public License v3. See " + build.GitHubLink

// globals holds the flags shared by every subcommand.
type globals struct {
	configPath string
	verbose    bool
	format     string
	noHeaders  bool
}

// MainCommand provides the main program entrypoint that dispatches to utility subcommands.
func MainCommand() *cobra.Command {
	g := &globals{}
	cmd := rootCommand(g)

	cmds := []*cobra.Command{
		disksCommand(g),
		poolCommand(g),
		shareCommand(g),
		snapshotCommand(g),
		quotaCommand(g),
		profileCommand(g),
	}
	for i := range cmds {
		cmd.AddCommand(cmds[i])
	}

	return cmd
}

// rootCommand builds a root command object for program run.
func rootCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "btrfs-utils",
		Short: "manage btrfs pools, shares and snapshots",
		Long: strings.TrimSpace(`
This command drives the btrfs and block device tools to manage storage pools on a NAS host.

It covers device discovery, pool creation and mounting, RAID profile changes, quota groups, shares and
snapshots. Tasks are reached through subcommands, each with help text and usages that accompany them.
`),
		Version:      build.VersionString(),
		SilenceUsage: true,
	}

	versionTemplate := "{{.Name}} {{.Version}} [%s]\n\n%s\n"
	cmd.SetVersionTemplate(fmt.Sprintf(versionTemplate, build.CommitDate, shortLicenseText))

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to the configuration file")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose logging output")
	cmd.PersistentFlags().StringVarP(&g.format, "output", "o", string(output.FormatTable), "Output format (table, yaml)")
	cmd.PersistentFlags().BoolVar(&g.noHeaders, "no-headers", false, "Omit headers in table output")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := logrus.InfoLevel
		if g.verbose {
			level = logrus.DebugLevel
		}
		setupLogging(level)

		if err := output.ValidateFormat(g.format); err != nil {
			return err
		}

		cfg, err := config.Load(g.configPath)
		if err != nil {
			return err
		}
		logrus.WithField("mount_dir", cfg.MountDir).Debug("Loaded configuration")

		cmd.SetContext(contextual.WithConfig(cmd.Context(), cfg))

		return nil
	}

	return cmd
}

// setupLogging configures logrus to use the desired timestamp format and log level.
func setupLogging(level logrus.Level) {
	Formatter := &logrus.TextFormatter{}

	// Configure the formatter
	Formatter.TimestampFormat = time.RFC822
	Formatter.FullTimestamp = true

	// Set the desired log level
	logrus.SetLevel(level)

	logrus.SetFormatter(Formatter)
}

// hasRootPrivileges is replaced in tests.
var hasRootPrivileges = func() bool {
	return os.Geteuid() == 0
}

// assertRootPrivileges checks if the command is running with root permissions.
// If the command doesn't have root permissions, a help message is logged with
// an example and an error is returned.
func assertRootPrivileges(cmd *cobra.Command, args []string) error {
	logrus.Debug("Checking user permissions...")
	ok := hasRootPrivileges()
	if !ok {
		logrus.WithField("example", "sudo "+cmd.CommandPath()).Warn("Root privileges required")
		return errors.New("root privileges required, re-run command with sudo")
	}

	return nil
}
