// Package config handles station settings, the static port map and the
// reference image directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

// Station holds the settings for one imaging station
type Station struct {
	ImageDir      string        `mapstructure:"image_dir"`
	USBMap        string        `mapstructure:"usb_map"`
	GeometryFile  string        `mapstructure:"geometry_file"`
	Part1Image    string        `mapstructure:"part1_image"`
	Part2Image    string        `mapstructure:"part2_image"`
	SystemDisk    string        `mapstructure:"system_disk"`
	DevicePattern string        `mapstructure:"device_pattern"`
	Stagger       time.Duration `mapstructure:"stagger"`
	AlertInterval time.Duration `mapstructure:"alert_interval"`
	Tick          time.Duration `mapstructure:"tick"`
	CopyBlockSize string        `mapstructure:"copy_block_size"`
	LogFile       string        `mapstructure:"log_file"`
	Verbosity     string        `mapstructure:"verbosity"`
	Notifications bool          `mapstructure:"notifications"`
	Headless      bool          `mapstructure:"headless"`
}

// Defaults used when neither flags, environment nor config file set a key
var Defaults = map[string]interface{}{
	"usb_map":         "usb_map.yaml",
	"geometry_file":   "partition.txt",
	"part1_image":     "part1.img",
	"part2_image":     "part2.img",
	"system_disk":     "/dev/sda",
	"device_pattern":  `^/dev/sd[a-z]+$`,
	"stagger":         2 * time.Second,
	"alert_interval":  10 * time.Second,
	"tick":            50 * time.Millisecond,
	"copy_block_size": "4M",
	"log_file":        "pyromaniac.log",
	"verbosity":       "info",
	"notifications":   true,
	"headless":        false,
}

// SetDefaults registers Defaults on v
func SetDefaults(v *viper.Viper) {
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}
}

// FromViper decodes the station settings held by v
func FromViper(v *viper.Viper) (*Station, error) {
	var s Station
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode station settings: %w", err)
	}
	return &s, nil
}

// GeometryPath returns the full path of the geometry file
func (s *Station) GeometryPath() string {
	return filepath.Join(s.ImageDir, s.GeometryFile)
}

// Part1ImagePath returns the full path of the first partition image
func (s *Station) Part1ImagePath() string {
	return filepath.Join(s.ImageDir, s.Part1Image)
}

// Part2ImagePath returns the full path of the second partition image
func (s *Station) Part2ImagePath() string {
	return filepath.Join(s.ImageDir, s.Part2Image)
}

// ReferenceFiles lists the files inside ImageDir a burn depends on
func (s *Station) ReferenceFiles() []string {
	return []string{s.GeometryFile, s.Part1Image, s.Part2Image}
}

// Validate checks everything a burn run needs before the event loop starts
func (s *Station) Validate() error {
	if s.ImageDir == "" {
		return fmt.Errorf("%w: no image directory configured", ErrImageDirUnreadable)
	}

	info, err := os.Stat(s.ImageDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImageDirUnreadable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrImageDirUnreadable, s.ImageDir)
	}
	if _, err := os.ReadDir(s.ImageDir); err != nil {
		return fmt.Errorf("%w: %v", ErrImageDirUnreadable, err)
	}

	for _, name := range s.ReferenceFiles() {
		path := filepath.Join(s.ImageDir, name)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrImageDirUnreadable, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %s is not a regular file", ErrImageDirUnreadable, path)
		}
	}

	if s.SystemDisk == "" {
		return fmt.Errorf("%w: system_disk must be set", ErrInvalidSetting)
	}
	if _, err := regexp.Compile(s.DevicePattern); err != nil {
		return fmt.Errorf("%w: device_pattern: %v", ErrInvalidSetting, err)
	}

	for key, d := range map[string]time.Duration{
		"stagger":        s.Stagger,
		"alert_interval": s.AlertInterval,
		"tick":           s.Tick,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidSetting, key, d)
		}
	}

	if s.CopyBlockSize == "" {
		return fmt.Errorf("%w: copy_block_size must be set", ErrInvalidSetting)
	}

	return nil
}
