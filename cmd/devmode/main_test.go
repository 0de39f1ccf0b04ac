package main

import (
	"log/slog"
	"slices"
	"testing"
)

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	if err := setupLogging("debug"); err != nil {
		t.Fatalf("setupLogging: %v", err)
	}
	if !slog.Default().Enabled(t.Context(), slog.LevelDebug) {
		t.Error("expected debug enabled")
	}
	if err := setupLogging("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestEnvList(t *testing.T) {
	got := envList(map[string]string{"MAVEN_OPTS": "-Xmx1g", "JAVA_HOME": "/opt/jdk"})
	want := []string{"JAVA_HOME=/opt/jdk", "MAVEN_OPTS=-Xmx1g"}
	if !slices.Equal(got, want) {
		t.Errorf("envList = %v, want %v", got, want)
	}
}
