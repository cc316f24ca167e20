package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetState() {
	CloseAll()
	CloseAudit()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	configLoaded = false
	auditLogger = nil
}

func TestAllCategoriesLog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true, "parse": true, "symgraph": true, "effects": true,
				"types": true, "requirements": true, "optimizer": true,
				"emit": true, "store": true, "cli": true
			}
		}
	}`
	if err := os.WriteFile(filepath.Join(tempDir, "covenant.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Error("expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot, CategoryParse, CategorySymGraph, CategoryEffects,
		CategoryTypes, CategoryRequirements, CategoryOptimizer,
		CategoryEmit, CategoryStore, CategoryCLI,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("test info message for %s", cat)
		logger.Debug("test debug message for %s", cat)
		logger.Warn("test warn message for %s", cat)
		logger.Error("test error message for %s", cat)
	}

	Parse("convenience parse log")
	Types("convenience types log")
	Emit("convenience emit log")

	CloseAll()
	CloseAudit()

	logsPath := filepath.Join(tempDir, ".covenant", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("failed to read logs dir: %v", err)
	}

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("no log file found for category: %s", cat)
		}
	}
}

func TestDebugModeDisabled(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_disabled")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `{"logging": {"level": "debug", "debug_mode": false, "categories": {"boot": true}}}`
	if err := os.WriteFile(filepath.Join(tempDir, "covenant.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}
	if IsDebugMode() {
		t.Error("expected debug mode to be disabled (production mode)")
	}

	if IsCategoryEnabled(CategoryBoot) {
		t.Error("boot should be disabled when debug_mode=false")
	}

	Boot("this should not be logged")
	logger := Get(CategoryBoot)
	logger.Info("this should not be logged")

	CloseAll()
	CloseAudit()

	logsPath := filepath.Join(tempDir, ".covenant", "logs")
	if _, err := os.Stat(logsPath); err == nil {
		entries, _ := os.ReadDir(logsPath)
		if len(entries) > 0 {
			t.Errorf("expected no log files in production mode, found %d", len(entries))
		}
	}
}

func TestCategoryToggle(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_category")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {"boot": true, "emit": true, "store": false, "cli": false}
		}
	}`
	if err := os.WriteFile(filepath.Join(tempDir, "covenant.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}

	if !IsCategoryEnabled(CategoryBoot) {
		t.Error("boot should be enabled")
	}
	if !IsCategoryEnabled(CategoryEmit) {
		t.Error("emit should be enabled")
	}
	if IsCategoryEnabled(CategoryStore) {
		t.Error("store should be disabled")
	}
	if IsCategoryEnabled(CategoryCLI) {
		t.Error("cli should be disabled")
	}
	if !IsCategoryEnabled(CategoryTypes) {
		t.Error("types (not in config) should default to enabled")
	}

	Boot("this should be logged")
	Store("this should not be logged")

	CloseAll()
	CloseAudit()

	logsPath := filepath.Join(tempDir, ".covenant", "logs")
	entries, _ := os.ReadDir(logsPath)

	hasBootLog, hasStoreLog := false, false
	for _, e := range entries {
		if strings.Contains(e.Name(), "boot") {
			hasBootLog = true
		}
		if strings.Contains(e.Name(), "store") {
			hasStoreLog = true
		}
	}
	if !hasBootLog {
		t.Error("expected boot log file")
	}
	if hasStoreLog {
		t.Error("should not have store log file (disabled)")
	}
}

func TestTimerLogging(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_timer")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	os.WriteFile(filepath.Join(tempDir, "covenant.json"),
		[]byte(`{"logging": {"level": "debug", "debug_mode": true}}`), 0644)

	resetState()
	Initialize(tempDir)

	timer := StartTimer(CategoryOptimizer, "TestOperation")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()
	if elapsed <= 0 {
		t.Error("timer should have recorded non-zero duration")
	}

	CloseAll()
	CloseAudit()
}
