package logging

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestInitializeCreatesLogsDirOnlyInDebugMode(t *testing.T) {
	workspace := t.TempDir()
	if err := Initialize(workspace, Settings{DebugMode: false, Level: "info"}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, ".aether", "logs")); !os.IsNotExist(err) {
		t.Fatalf("logs dir should not exist without debug mode (err=%v)", err)
	}

	if err := Initialize(workspace, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer CloseAll()
	if _, err := os.Stat(filepath.Join(workspace, ".aether", "logs")); err != nil {
		t.Fatalf("logs dir should exist in debug mode: %v", err)
	}
}

func TestCategoryGatingHonorsSettings(t *testing.T) {
	workspace := t.TempDir()
	err := Initialize(workspace, Settings{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{string(CategoryParse): false},
	})
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategoryParse) {
		t.Error("parse category should be disabled")
	}
	if !IsCategoryEnabled(CategoryIndex) {
		t.Error("unlisted categories default to enabled")
	}
	if Get(CategoryParse).logger != nil {
		t.Error("disabled category should get a no-op logger")
	}
}

func TestLoggingIsSafeDuringReinitialization(t *testing.T) {
	workspace := t.TempDir()
	if err := Initialize(workspace, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer CloseAll()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Index("worker message %d", j)
				IndexDebug("worker detail %d", j)
			}
		}()
	}

	// Flipping the level while loggers are active must not race.
	levels := []string{"info", "debug", "warn", "debug"}
	for _, level := range levels {
		if err := Initialize(workspace, Settings{DebugMode: true, Level: level}); err != nil {
			t.Fatalf("reinitialize failed: %v", err)
		}
	}
	wg.Wait()
}
