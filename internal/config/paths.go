package config

import (
	"os"
	"path/filepath"
)

const appName = "dayplan"

// Paths contains the standard directories for dayplan data.
type Paths struct {
	Data   string // ~/.local/share/dayplan
	Config string // ~/.config/dayplan
}

// GetPaths returns the XDG-style paths for dayplan data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), appName),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), appName),
	}
}

// SessionsDir returns the default sessions directory.
func (p *Paths) SessionsDir() string {
	return filepath.Join(p.Data, "sessions")
}

// ProfilesDir returns the default profiles directory.
func (p *Paths) ProfilesDir() string {
	return filepath.Join(p.Data, "profiles")
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

func defaultConfigHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config")
}
