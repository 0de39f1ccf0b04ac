package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunWatchChecksSocketDirFirst(t *testing.T) {
	root := t.TempDir()
	// a file where the socket directory should go
	if err := os.WriteFile(filepath.Join(root, "blocker"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg := "api_socket: blocker/devmode.sock\nhistory: target/history.log\n"
	if err := os.WriteFile(filepath.Join(root, ".devmode.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	prev := projectDir
	projectDir = root
	t.Cleanup(func() { projectDir = prev })

	err := runWatch(watchCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "socket dir") {
		t.Fatalf("expected socket dir error, got %v", err)
	}
	// nothing else was set up before the failure
	if _, err := os.Stat(filepath.Join(root, "target")); !os.IsNotExist(err) {
		t.Errorf("expected history dir not to be created, got %v", err)
	}
}
