// Package bootstrap prepares the tagbot home directory on first run.
package bootstrap

import (
	"fmt"
	"os"

	"github.com/neoclaw-ai/tagbot/internal/config"
	"github.com/neoclaw-ai/tagbot/internal/store"
)

// Initialize creates the expected tagbot data tree and a starter config if
// missing. Existing files are never overwritten.
func Initialize(cfg *config.Config) error {
	dirs := []string{
		cfg.HomeDir,
		cfg.DataDir(),
		cfg.StoreDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	defaultConfig, err := config.DefaultUserConfigTOML()
	if err != nil {
		return err
	}
	if err := writeFileIfMissing(cfg.ConfigPath(), defaultConfig); err != nil {
		return err
	}

	return nil
}

func writeFileIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %q: %w", path, err)
	}

	if err := store.WriteFile(path, []byte(content)); err != nil {
		return fmt.Errorf("write file %q: %w", path, err)
	}
	return nil
}
