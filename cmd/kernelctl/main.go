// Command kernelctl hosts the kernel core against a host file acting as
// the block device: it can format a fresh FAT32 image, boot the task
// subsystem from it and run binaries to completion, or run a light
// consistency check over an existing image. One root command, one file
// per subcommand, flags bound through viper via package config.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sv39os/kernel/klog"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "kernelctl",
		Short: "host-file-backed harness for the SV39 task/filesystem core",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a boot config file")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		raw, _ := cmd.Flags().GetString("log-level")
		lvl, err := logrus.ParseLevel(raw)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		klog.SetLevel(lvl)
	}

	root.AddCommand(mkfsCmd())
	root.AddCommand(bootCmd())
	root.AddCommand(fsckCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
