// Package config loads the hosted harness's boot configuration via
// viper, the configuration library the wider example pack reaches for
// (the teacher itself is a freestanding kernel with no config file of
// its own, so this is adopted fresh for cmd/kernelctl rather than
// adapted from a teacher file).
package config

import (
	"github.com/spf13/viper"
)

// BootConfig holds everything cmd/kernelctl needs to boot the kernel
// core against a disk image.
type BootConfig struct {
	DiskImage         string `mapstructure:"disk_image"`
	InfoCacheSize     int    `mapstructure:"info_cache_size"`
	DataCacheSize     int    `mapstructure:"data_cache_size"`
	FatInfoStartSector int   `mapstructure:"fat_info_start_sector"`
	DataStartSector   int    `mapstructure:"data_start_sector"`
	DefaultPriority   int    `mapstructure:"default_priority"`
	MemEndBytes       int64  `mapstructure:"mem_end_bytes"`
	MetricsAddr       string `mapstructure:"metrics_addr"`
	LogLevel          string `mapstructure:"log_level"`
}

func defaults() BootConfig {
	return BootConfig{
		DiskImage:           "disk.img",
		InfoCacheSize:       10,
		DataCacheSize:       10,
		FatInfoStartSector:  0,
		DataStartSector:     0,
		DefaultPriority:     16,
		MemEndBytes:         64 << 20,
		MetricsAddr:         "",
		LogLevel:            "info",
	}
}

// Load reads configuration from cfgFile (if non-empty), the
// SV39OS_-prefixed environment, and falls back to defaults() otherwise.
func Load(cfgFile string) (BootConfig, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("disk_image", d.DiskImage)
	v.SetDefault("info_cache_size", d.InfoCacheSize)
	v.SetDefault("data_cache_size", d.DataCacheSize)
	v.SetDefault("fat_info_start_sector", d.FatInfoStartSector)
	v.SetDefault("data_start_sector", d.DataStartSector)
	v.SetDefault("default_priority", d.DefaultPriority)
	v.SetDefault("mem_end_bytes", d.MemEndBytes)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix("SV39OS")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return BootConfig{}, err
		}
	}

	var cfg BootConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return BootConfig{}, err
	}
	return cfg, nil
}
