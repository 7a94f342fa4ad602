package config

import "errors"

var (
	// ErrPortMapMissing is returned when the static port map file does not exist
	ErrPortMapMissing = errors.New("port map file not found")

	// ErrInvalidPortMap is returned when the port map is empty or inconsistent
	ErrInvalidPortMap = errors.New("invalid port map")

	// ErrImageDirUnreadable is returned when the reference image directory cannot be used
	ErrImageDirUnreadable = errors.New("image directory unreadable")

	// ErrInvalidSetting is returned for out-of-range station settings
	ErrInvalidSetting = errors.New("invalid station setting")
)
