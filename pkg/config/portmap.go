package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// PortMap maps logical port names to physical USB topology paths, e.g. USB0 -> 2-4:1.0
type PortMap map[string]string

// Names returns the port names in sorted order
func (m PortMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the map is usable as a port registry seed
func (m PortMap) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("%w: no ports defined", ErrInvalidPortMap)
	}

	owners := make(map[string]string, len(m))
	for _, name := range m.Names() {
		phys := m[name]
		if strings.TrimSpace(name) == "" || strings.TrimSpace(phys) == "" {
			return fmt.Errorf("%w: empty port name or physical path", ErrInvalidPortMap)
		}
		if other, dup := owners[phys]; dup {
			return fmt.Errorf("%w: %s and %s share physical path %s", ErrInvalidPortMap, other, name, phys)
		}
		owners[phys] = name
	}
	return nil
}

// LoadPortMap reads a port map. The format follows the file extension:
// .json and .toml are supported, anything else is read as YAML.
func LoadPortMap(path string) (PortMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPortMapMissing, path)
		}
		return nil, fmt.Errorf("failed to read port map: %w", err)
	}

	m := make(PortMap)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &m)
	case ".toml":
		err = toml.Unmarshal(data, &m)
	default:
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPortMap, path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// SavePortMap writes m as YAML, replacing path atomically
func SavePortMap(path string, m PortMap) error {
	if err := m.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(map[string]string(m))
	if err != nil {
		return fmt.Errorf("failed to encode port map: %w", err)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write port map: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to replace port map: %w", err)
	}
	return nil
}
