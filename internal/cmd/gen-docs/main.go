// Command gen-docs writes the reference of every btrfs-utils command as markdown, or as man pages when the
// second argument is "man".
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra/doc"

	"github.com/rockstor/btrfs-utils/internal/build"
	"github.com/rockstor/btrfs-utils/internal/cmd"
)

func main() {
	outdir := "./docs"
	format := "markdown"
	args := os.Args
	if len(args) >= 2 {
		outdir = args[1]
	}
	if len(args) >= 3 {
		format = args[2]
	}

	log := logrus.WithFields(logrus.Fields{"outdir": outdir, "format": format})
	log.Info("generating docs")

	if err := os.MkdirAll(outdir, 0755); err != nil {
		panic(err)
	}

	root := cmd.MainCommand()
	root.DisableAutoGenTag = true

	var err error
	switch format {
	case "man":
		err = doc.GenManTree(root, &doc.GenManHeader{
			Title:   "BTRFS-UTILS",
			Section: "8",
			Source:  "btrfs-utils " + build.VersionString(),
			Manual:  "System Administration",
		}, outdir)
	default:
		err = doc.GenMarkdownTree(root, outdir)
	}
	if err != nil {
		panic(err)
	}

	log.Info("generated docs")
}
