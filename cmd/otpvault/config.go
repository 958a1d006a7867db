package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// CLIConfig is the persistent CLI configuration. The master passphrase is
// deliberately not part of it and is never read from the environment.
type CLIConfig struct {
	StorePath string `yaml:"store_path"`
	LogLevel  string `yaml:"log_level"`
}

var cfg CLIConfig

// configDir returns the otpvault settings directory.
func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".otpvault")
}

// loadConfig loads the CLI config from disk, falling back to defaults.
func loadConfig() {
	cfg = CLIConfig{
		StorePath: filepath.Join(configDir(), "store.otpv"),
		LogLevel:  "info",
	}
	data, err := os.ReadFile(filepath.Join(configDir(), "config.yaml"))
	if err != nil {
		return // Use defaults
	}
	yaml.Unmarshal(data, &cfg) //nolint:errcheck
}

// configCmd lets the user point the CLI at a different store file.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage CLI configuration"}

	setStoreCmd := &cobra.Command{
		Use:   "set-store <path>",
		Short: "Set the store file location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			cfg.StorePath = path
			if err := saveConfig(); err != nil {
				return err
			}
			printSuccess("Store path set to " + path)
			return nil
		},
	}

	cmd.AddCommand(setStoreCmd)
	return cmd
}

// saveConfig persists the CLI config to disk.
func saveConfig() error {
	path := filepath.Join(configDir(), "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
