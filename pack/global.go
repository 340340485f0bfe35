package pack

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

// GlobalConfig is the per-user configuration, separate from any single pack
// source. It lives at $XDG_CONFIG_HOME/packsmith/config.toml.
type GlobalConfig struct {
	// CurseForgeAPIKey authenticates api.curseforge.com requests.
	// CurseForge metadata cannot be fetched without it.
	CurseForgeAPIKey string `toml:"curseforge_api_key"`
}

func GlobalConfigPath() (string, error) {
	return xdg.ConfigFile(filepath.Join("packsmith", "config.toml"))
}

// LoadGlobalConfig reads the per-user configuration. A missing file yields
// an empty configuration; whether that is an error depends on which
// platforms the pack references, so it is checked at client construction.
func LoadGlobalConfig() (*GlobalConfig, error) {
	fpath, err := GlobalConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fpath)
	if errors.Is(err, fs.ErrNotExist) {
		return &GlobalConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	var c GlobalConfig
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %q: %w", fpath, err)
	}
	return &c, nil
}
