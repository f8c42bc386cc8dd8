package config

import "path/filepath"

const (
	// Global layout under TAGBOT_HOME.
	ConfigFilePath = "config.toml"
	DataDirPath    = "data"
	PIDFilePath    = "tagbot.pid"

	// Chat configuration database under TAGBOT_HOME/data.
	ChatsDirPath = "chats"
	// Auto-fill usage ledger under TAGBOT_HOME/data.
	CostsFilePath = "costs.jsonl"
)

func homeConfigPath(home string) string {
	return filepath.Join(home, ConfigFilePath)
}

func defaultHomePath(home string) string {
	return filepath.Join(home, ".tagbot")
}

func homeDataPath(home string) string {
	return filepath.Join(home, DataDirPath)
}

func (c *Config) ConfigPath() string {
	return homeConfigPath(c.HomeDir)
}

func (c *Config) DataDir() string {
	return homeDataPath(c.HomeDir)
}

func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir(), PIDFilePath)
}

// StoreDir is the badger directory holding chat configurations.
func (c *Config) StoreDir() string {
	if c.Store.Dir != "" {
		return c.Store.Dir
	}
	return filepath.Join(c.DataDir(), ChatsDirPath)
}

// CostsPath is the JSONL ledger of auto-fill token usage.
func (c *Config) CostsPath() string {
	return filepath.Join(c.DataDir(), CostsFilePath)
}
