package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// WriteDefaults writes a configuration file holding every default setting.
// The format follows the file extension.
func WriteDefaults(path string) error {
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// SnapshotPath returns the default location of a register snapshot
func SnapshotPath(name string) string {
	return filepath.Join("etc", "cc1101", fmt.Sprintf("%s.json", name))
}
