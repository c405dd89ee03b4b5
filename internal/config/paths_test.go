package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetNodePathsDefaults(t *testing.T) {
	t.Setenv("NODEGATE_HOME", "/srv/nodegate")

	paths := GetNodePaths("")
	if paths.Home != filepath.Join("/srv/nodegate", "nodes", DefaultNode) {
		t.Fatalf("unexpected home: %s", paths.Home)
	}
	if paths.ConfigDB != filepath.Join(paths.Home, "config.db") {
		t.Fatalf("unexpected config db path: %s", paths.ConfigDB)
	}
	if paths.Socket != filepath.Join(paths.Home, "console.sock") {
		t.Fatalf("unexpected socket path: %s", paths.Socket)
	}
}

func TestGetNodePathsNamedNode(t *testing.T) {
	t.Setenv("NODEGATE_HOME", "/srv/nodegate")

	paths := GetNodePaths("door-07")
	if paths.Home != filepath.Join("/srv/nodegate", "nodes", "door-07") {
		t.Fatalf("unexpected home: %s", paths.Home)
	}
}

func TestEnsureNodeDirs(t *testing.T) {
	t.Setenv("NODEGATE_HOME", t.TempDir())

	paths, err := EnsureNodeDirs("test-node")
	if err != nil {
		t.Fatalf("EnsureNodeDirs: %v", err)
	}

	for _, dir := range []string{paths.Home, paths.Logs, paths.TempDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist", dir)
		}
	}
}

func TestExpandPath(t *testing.T) {
	if got := ExpandPath(""); got != "" {
		t.Fatalf("expected empty path unchanged, got %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Fatalf("expected absolute path unchanged, got %q", got)
	}
}
