package config

import (
	"os"
	"path/filepath"
)

// ConfigEnvVar overrides the config file location.
const ConfigEnvVar = "RNHOST_CONFIG"

// GetConfigPath returns the configuration file path. RNHOST_CONFIG wins,
// otherwise ~/.rnhost/config.
func GetConfigPath() (string, error) {
	if configPath := os.Getenv(ConfigEnvVar); configPath != "" {
		return configPath, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".rnhost", "config"), nil
}
