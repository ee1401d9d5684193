package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sv39os/kernel/blkcache"
	"github.com/sv39os/kernel/blkdev"
	"github.com/sv39os/kernel/config"
	"github.com/sv39os/kernel/fat32"
	"github.com/sv39os/kernel/metrics"
)

func fsckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fsck <disk-image>",
		Short: "check that FSInfo's free-cluster count matches the FAT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fsck(args[0])
		},
	}
	return cmd
}

// fsck recomputes free_count by scanning the FAT directly and compares
// it against the cached value FSInfo reports.
func fsck(path string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg.DiskImage = path

	dev, err := blkdev.OpenFileDisk(cfg.DiskImage)
	if err != nil {
		return err
	}
	defer dev.Close()

	reg := prometheus.NewRegistry()
	infoCache := blkcache.New(cfg.InfoCacheSize, dev, cfg.FatInfoStartSector, metrics.NewCacheMetrics(reg, "info"))
	dataCache := blkcache.New(cfg.DataCacheSize, dev, cfg.DataStartSector, metrics.NewCacheMetrics(reg, "data"))

	fs, err := fat32.Open(infoCache, dataCache)
	if err != nil {
		return err
	}

	reported := fs.FreeClusters()
	rescanned := fs.CountFreeClusters()
	fmt.Printf("FSInfo reports %d free clusters, rescan found %d\n", reported, rescanned)
	if reported != rescanned {
		return errors.Errorf("fsck: free cluster count mismatch: FSInfo=%d rescan=%d", reported, rescanned)
	}
	return nil
}
