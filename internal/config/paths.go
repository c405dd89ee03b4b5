package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultNode is the node name used when none is configured.
const DefaultNode = "default"

// NodePaths contains all on-disk paths for a nodegate node.
type NodePaths struct {
	Home     string // Node home directory
	ConfigDB string // SQLite configuration store path
	Socket   string // Console socket path
	PIDFile  string // Daemon pid file path
	Logs     string // Logs directory
	TempDir  string // Temporary files directory
}

// GetNodePaths returns all paths for a given node.
// An empty node name defaults to "default".
func GetNodePaths(nodeName string) NodePaths {
	if nodeName == "" {
		nodeName = DefaultNode
	}

	nodeDir := filepath.Join(GetNodegateHome(), "nodes", nodeName)

	return NodePaths{
		Home:     nodeDir,
		ConfigDB: filepath.Join(nodeDir, "config.db"),
		Socket:   filepath.Join(nodeDir, "console.sock"),
		PIDFile:  filepath.Join(nodeDir, "nodegated.pid"),
		Logs:     filepath.Join(nodeDir, "logs"),
		TempDir:  filepath.Join(nodeDir, "tmp"),
	}
}

// GetNodegateHome returns the nodegate home directory. The NODEGATE_HOME
// environment variable overrides the default of ~/.nodegate.
func GetNodegateHome() string {
	if home := os.Getenv("NODEGATE_HOME"); home != "" {
		return home
	}
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".nodegate")
}

// EnsureNodeDirs creates the directory layout for a node and returns its paths.
func EnsureNodeDirs(nodeName string) (NodePaths, error) {
	paths := GetNodePaths(nodeName)

	for _, dir := range []string{paths.Home, paths.Logs, paths.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return NodePaths{}, fmt.Errorf("config: create directory %s: %w", dir, err)
		}
	}

	return paths, nil
}

// ExpandPath expands a leading ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) == 1 {
		return home
	}
	if path[1] == '/' || path[1] == os.PathSeparator {
		return filepath.Join(home, path[2:])
	}
	return path
}
