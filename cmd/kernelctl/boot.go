package main

import (
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sv39os/kernel/blkcache"
	"github.com/sv39os/kernel/blkdev"
	"github.com/sv39os/kernel/config"
	"github.com/sv39os/kernel/fat32"
	"github.com/sv39os/kernel/mem"
	"github.com/sv39os/kernel/metrics"
	"github.com/sv39os/kernel/pipe"
	"github.com/sv39os/kernel/sched"
	"github.com/sv39os/kernel/syscall"
	"github.com/sv39os/kernel/task"
)

func bootCmd() *cobra.Command {
	var elfPath string
	cmd := &cobra.Command{
		Use:   "boot <disk-image>",
		Short: "boot the kernel core against an image and run one ELF binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return boot(args[0], elfPath)
		},
	}
	cmd.Flags().StringVar(&elfPath, "init", "", "path to the init ELF binary")
	cmd.MarkFlagRequired("init")
	return cmd
}

// bootResult bundles everything boot() assembles, for the benefit of
// tests that want to drive the dispatcher directly without the CLI.
type bootResult struct {
	Dispatcher *syscall.Dispatcher_t
	Sched      *sched.Scheduler_t
	Kernel     *task.Kernel_t
}

func bootKernel(cfg config.BootConfig) (*bootResult, *blkdev.FileDisk_t, error) {
	dev, err := blkdev.OpenFileDisk(cfg.DiskImage)
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	infoMetrics := metrics.NewCacheMetrics(reg, "info")
	dataMetrics := metrics.NewCacheMetrics(reg, "data")

	infoCache := blkcache.New(cfg.InfoCacheSize, dev, cfg.FatInfoStartSector, infoMetrics)
	dataCache := blkcache.New(cfg.DataCacheSize, dev, cfg.DataStartSector, dataMetrics)

	fs, err := fat32.Open(infoCache, dataCache)
	if err != nil {
		dev.Close()
		return nil, nil, errors.Wrap(err, "boot: open filesystem")
	}

	nframes := uintptr(cfg.MemEndBytes) >> mem.PGSHIFT
	frames := mem.MkFrameAllocator(0, nframes)
	trampoline, ok := frames.Alloc()
	if !ok {
		dev.Close()
		return nil, nil, errors.New("boot: out of frames for trampoline")
	}

	k := task.NewKernel(frames, trampoline.PPN)
	s := sched.New()
	d := syscall.New(k, s, fs)

	// sched.ContextSwitch_f is left unset here: trap entry/exit is real
	// RISC-V assembly this hosted harness has nothing to run on. A
	// caller targeting actual hardware or an emulator must call
	// sched.SetContextSwitch before IdleLoop does anything useful.

	pipe.Yield_f = func() {
		if cur := s.Current(); cur != nil {
			sched.Yield(cur)
		}
	}

	return &bootResult{Dispatcher: d, Sched: s, Kernel: k}, dev, nil
}

func boot(diskPath, elfPath string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg.DiskImage = diskPath

	br, dev, err := bootKernel(cfg)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := chkELF(elfPath); err != nil {
		return errors.Wrap(err, "boot: init binary")
	}

	elfBytes, err := os.ReadFile(elfPath)
	if err != nil {
		return errors.Wrap(err, "boot: read init binary")
	}

	initTask, err := br.Kernel.New(elfBytes)
	if err != nil {
		return errors.Wrap(err, "boot: build init task")
	}
	br.Dispatcher.Init = initTask
	br.Sched.Enqueue(initTask)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	stop := make(chan struct{})
	go func() {
		<-sig
		close(stop)
	}()

	log.Info("kernel core booted, running init task")
	br.Sched.IdleLoop(stop)
	br.Dispatcher.Shutdown()
	return nil
}
