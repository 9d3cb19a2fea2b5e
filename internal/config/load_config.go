package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RootEnv names the environment variable that relocates the install root.
const RootEnv = "PS1DEV_ROOT"

// ResolveRoot picks the install root: explicit flag value, then $PS1DEV_ROOT,
// then ~/.ps1dev. The result is always absolute.
func ResolveRoot(flagValue string) (string, error) {
	root := flagValue
	if root == "" {
		root = os.Getenv(RootEnv)
	}
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		root = filepath.Join(home, ".ps1dev")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve install root %s: %w", root, err)
	}
	return abs, nil
}

// flagKeys maps settings keys to the CLI flags that override them.
var flagKeys = map[string]string{
	"catalog":   "catalog",
	"timeout":   "timeout",
	"assumeYes": "yes",
	"logFile":   "log-file",
	"project":   "project",
}

// envKeys maps settings keys to their environment variables.
var envKeys = map[string]string{
	"catalog":   "PS1DEV_CATALOG",
	"timeout":   "PS1DEV_TIMEOUT",
	"assumeYes": "PS1DEV_ASSUME_YES",
	"logFile":   "PS1DEV_LOG_FILE",
	"project":   "PS1DEV_PROJECT",
}

func newSettingsViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("catalog", "")
	v.SetDefault("timeout", "0s")
	v.SetDefault("assumeYes", false)
	v.SetDefault("logFile", "")
	v.SetDefault("project", "")
	return v
}

// LoadSettings layers defaults, the optional settings file, environment variables and
// any flags in flags that the user set explicitly. A missing settings file is not an error.
func LoadSettings(settingsFile string, flags *pflag.FlagSet) (Settings, error) {
	v := newSettingsViper()

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return Settings{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Settings{}, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if settingsFile != "" {
		if _, err := os.Stat(settingsFile); err == nil {
			v.SetConfigFile(settingsFile)
			if err := v.ReadInConfig(); err != nil {
				return Settings{}, fmt.Errorf("read settings %s: %w", settingsFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Settings{}, fmt.Errorf("stat settings %s: %w", settingsFile, err)
		}
	}

	return Settings{
		Catalog:   v.GetString("catalog"),
		Timeout:   v.GetDuration("timeout"),
		AssumeYes: v.GetBool("assumeYes"),
		LogFile:   v.GetString("logFile"),
		Project:   v.GetString("project"),
	}, nil
}
