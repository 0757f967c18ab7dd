package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultAppName names the config and data directories.
const DefaultAppName = "complaintdesk"

// Paths lists the files complaintdesk reads and writes.
type Paths struct {
	ConfigPath string
	// FormPath is where an optional form definition override is looked up.
	FormPath string
	DataDir  string
	DBPath   string
	LogDir   string
}

// Options selects the app name and dev-mode suffix.
type Options struct {
	AppName string
	DevMode bool
}

// DefaultPaths returns paths for DefaultAppName.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{AppName: DefaultAppName})
}

// DefaultPathsWithOptions resolves paths from the current OS and environment.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName := strings.TrimSpace(opts.AppName)
	if appName == "" {
		appName = DefaultAppName
	}
	if opts.DevMode {
		appName += "-dev"
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("user config dir: %w", err)
	}
	dataDir, err := dataRootFor(runtime.GOOS, configDir)
	if err != nil {
		return Paths{}, err
	}

	env := make(map[string]string)
	for _, o := range baseOverrides[runtime.GOOS] {
		env[o.config] = os.Getenv(o.config)
		env[o.data] = os.Getenv(o.data)
	}
	return PathsFor(runtime.GOOS, env, configDir, dataDir, appName)
}

// dataRootFor picks the per-user data root; the stdlib has no UserDataDir.
func dataRootFor(goos, configDir string) (string, error) {
	switch goos {
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("user home dir: %w", err)
		}
		return filepath.Join(home, ".local", "share"), nil
	case "windows":
		if v := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); v != "" {
			return v, nil
		}
	}
	return configDir, nil
}

// baseOverride names the env vars that replace the config and data roots.
type baseOverride struct {
	config string
	data   string
}

var baseOverrides = map[string][]baseOverride{
	"linux":   {{config: "XDG_CONFIG_HOME", data: "XDG_DATA_HOME"}},
	"windows": {{config: "APPDATA", data: "LOCALAPPDATA"}},
}

// PathsFor resolves paths for goos without touching the process environment.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, fmt.Errorf("empty base dirs")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, fmt.Errorf("empty app name")
	}

	configRoot, dataRoot := userConfigDir, userDataDir
	for _, o := range baseOverrides[goos] {
		if v := env[o.config]; v != "" {
			configRoot = v
		}
		if v := env[o.data]; v != "" {
			dataRoot = v
		}
	}

	configDir := filepath.Join(configRoot, appName)
	dataDir := filepath.Join(dataRoot, appName)
	return Paths{
		ConfigPath: filepath.Join(configDir, "config.toml"),
		FormPath:   filepath.Join(configDir, "complaint_form.yaml"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, appName+".db"),
		LogDir:     filepath.Join(dataDir, "log"),
	}, nil
}

// FormOverride returns FormPath when the file exists, otherwise "".
func (p Paths) FormOverride() string {
	if p.FormPath == "" {
		return ""
	}
	if _, err := os.Stat(p.FormPath); err != nil {
		return ""
	}
	return p.FormPath
}
