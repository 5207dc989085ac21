package config

import (
	"os"
	"path/filepath"
)

const DefaultInstance = "default"

// HomeEnv overrides the hmibridge home directory when set.
const HomeEnv = "HMIBRIDGE_HOME"

// InstancePaths contains all paths for a bridge instance.
type InstancePaths struct {
	Home        string // Instance home directory
	ConfigDB    string // SQLite settings store path
	Logs        string // Logs directory
	Cache       string // Plugin metadata cache directory
	PluginCache string // Plugin metadata disk document
	RunDir      string // Runtime state (pid file)
	PIDFile     string // Daemon pid file
}

// GetInstancePaths returns all paths for a given instance.
// Empty instance name defaults to "default".
func GetInstancePaths(instanceName string) InstancePaths {
	if instanceName == "" {
		instanceName = DefaultInstance
	}

	instanceDir := filepath.Join(GetHome(), "instances", instanceName)
	cacheDir := filepath.Join(instanceDir, "cache")
	runDir := filepath.Join(instanceDir, "run")

	return InstancePaths{
		Home:        instanceDir,
		ConfigDB:    filepath.Join(instanceDir, "config.db"),
		Logs:        filepath.Join(instanceDir, "logs"),
		Cache:       cacheDir,
		PluginCache: filepath.Join(cacheDir, "plugins.json"),
		RunDir:      runDir,
		PIDFile:     filepath.Join(runDir, "hmibridged.pid"),
	}
}

// GetHome returns the hmibridge home directory: $HMIBRIDGE_HOME, else
// ~/.hmibridge.
func GetHome() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return ExpandPath(home)
	}
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".hmibridge")
}

// ExpandPath expands ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == os.PathSeparator {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// EnsureInstanceDirs creates the directory structure for the given instance if it does not exist.
func EnsureInstanceDirs(instanceName string) (InstancePaths, error) {
	paths := GetInstancePaths(instanceName)

	dirs := []string{
		paths.Home,
		paths.Logs,
		paths.Cache,
		paths.RunDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, err
		}
	}

	return paths, nil
}
