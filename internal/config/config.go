// Package config holds the per-root settings of the vault tool: which
// named vault commands operate on by default. Nothing in here is secret;
// the file lives unencrypted at the root of the vault directory.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	fileName      = "config.yaml"
	ContainerFile = "vault.vlt"
)

type Config struct {
	DefaultVault string `yaml:"default_vault"`
}

func (c *Config) setDefaults() {
	if c.DefaultVault == "" {
		c.DefaultVault = "default"
	}
}

// Load reads the config at root, returning defaults when absent.
func Load(root string) (Config, error) {
	var c Config
	b, err := os.ReadFile(filepath.Join(root, fileName))
	if os.IsNotExist(err) {
		c.setDefaults()
		return c, nil
	}
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	c.setDefaults()
	return c, nil
}

// Save writes the config under root, creating the root as needed.
func Save(root string, c Config) error {
	if err := os.MkdirAll(root, 0700); err != nil {
		return err
	}
	b, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, fileName), b, 0600)
}

// VaultDir is the directory holding one named vault: the container file,
// its files/ blob directory and the session lock are co-located there.
func VaultDir(root, name string) string {
	return filepath.Join(root, "db", name)
}

// ContainerPath is the container file of a named vault.
func ContainerPath(root, name string) string {
	return filepath.Join(VaultDir(root, name), ContainerFile)
}

// ListVaults enumerates the named vaults under root.
func ListVaults(root string) ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(root, "db"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
