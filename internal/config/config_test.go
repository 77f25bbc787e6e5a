package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetConfig() {
	viper.Reset()
	cfg = nil
	configPathOverride = ""
}

func TestInit(t *testing.T) {
	t.Run("initializes with defaults when no config exists", func(t *testing.T) {
		resetConfig()

		// Point every search path at empty directories.
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		oldWd, _ := os.Getwd()
		if err := os.Chdir(t.TempDir()); err != nil {
			t.Fatal(err)
		}
		defer os.Chdir(oldWd)

		if err := Init(); err != nil {
			t.Errorf("Init() failed: %v", err)
		}

		config := Get()
		if config == nil {
			t.Fatal("Get() returned nil after Init()")
		}

		if config.Backend.Name != "auto" {
			t.Errorf("Expected default backend auto, got %s", config.Backend.Name)
		}
		if config.Backend.PollInterval != 2*time.Second {
			t.Errorf("Expected default poll interval 2s, got %v", config.Backend.PollInterval)
		}
		if config.Canvas.Scale != 0.1 {
			t.Errorf("Expected default canvas scale 0.1, got %v", config.Canvas.Scale)
		}
		if config.Canvas.SnapThreshold != 24 {
			t.Errorf("Expected default snap threshold 24, got %d", config.Canvas.SnapThreshold)
		}
		if config.Watch.DebounceMs != 800 {
			t.Errorf("Expected default debounce 800ms, got %d", config.Watch.DebounceMs)
		}
		if !config.Watch.AutoApply {
			t.Error("Expected auto apply on by default")
		}
		if config.Rescue.Enabled {
			t.Error("Expected rescue server off by default")
		}
		if config.Rescue.Port != 52525 {
			t.Errorf("Expected default rescue port 52525, got %d", config.Rescue.Port)
		}
	})

	t.Run("file values override defaults", func(t *testing.T) {
		resetConfig()

		content := `[backend]
name = "wlr-randr"
poll_interval = "5s"

[canvas]
snap_threshold = 48

[watch]
debounce_ms = 1200
auto_apply = false
`
		path := filepath.Join(t.TempDir(), "wayrange.toml")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		SetConfigPath(path)

		if err := Init(); err != nil {
			t.Fatalf("Init() failed: %v", err)
		}

		config := Get()
		if config.Backend.Name != "wlr-randr" {
			t.Errorf("Expected backend wlr-randr, got %s", config.Backend.Name)
		}
		if config.Backend.PollInterval != 5*time.Second {
			t.Errorf("Expected poll interval 5s, got %v", config.Backend.PollInterval)
		}
		if config.Canvas.SnapThreshold != 48 {
			t.Errorf("Expected snap threshold 48, got %d", config.Canvas.SnapThreshold)
		}
		if config.Canvas.GridSize != 50 {
			t.Errorf("Expected unset grid size to keep default 50, got %d", config.Canvas.GridSize)
		}
		if config.Watch.DebounceMs != 1200 {
			t.Errorf("Expected debounce 1200ms, got %d", config.Watch.DebounceMs)
		}
		if config.Watch.AutoApply {
			t.Error("Expected auto apply disabled")
		}
	})

	t.Run("invalid TOML returns an error", func(t *testing.T) {
		resetConfig()

		content := `[backend
name = "wlr"`
		path := filepath.Join(t.TempDir(), "wayrange.toml")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		SetConfigPath(path)

		err := Init()
		if err == nil {
			t.Fatal("Init() accepted invalid TOML")
		}
		if !strings.Contains(err.Error(), "reading config") {
			t.Errorf("Expected reading error, got: %v", err)
		}
	})
}

func TestGetConfigPath(t *testing.T) {
	t.Run("override wins", func(t *testing.T) {
		resetConfig()
		SetConfigPath("/tmp/custom.toml")

		if path := GetConfigPath(); path != "/tmp/custom.toml" {
			t.Errorf("Expected override path, got %s", path)
		}
	})

	t.Run("defaults to user config directory", func(t *testing.T) {
		resetConfig()

		dir, err := os.UserConfigDir()
		if err != nil {
			t.Skip("no user config directory in test environment")
		}
		want := filepath.Join(dir, "wayrange", "wayrange.toml")
		if path := GetConfigPath(); path != want {
			t.Errorf("Expected path %s, got %s", want, path)
		}
	})
}

func TestSaveRoundTrip(t *testing.T) {
	resetConfig()
	path := filepath.Join(t.TempDir(), "wayrange.toml")
	if err := os.WriteFile(path, []byte("[watch]\ndebounce_ms = 500\n"), 0644); err != nil {
		t.Fatal(err)
	}
	SetConfigPath(path)

	if err := Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	viper.Set("backend.name", "wlr")
	if err := Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	resetConfig()
	SetConfigPath(path)
	if err := Init(); err != nil {
		t.Fatalf("Init() after save failed: %v", err)
	}
	if got := Get().Backend.Name; got != "wlr" {
		t.Errorf("Expected saved backend wlr, got %s", got)
	}
	if got := Get().Watch.DebounceMs; got != 500 {
		t.Errorf("Expected file value to survive the save, got %d", got)
	}
}

func TestGetWithoutInit(t *testing.T) {
	resetConfig()

	config := Get()
	if config == nil {
		t.Fatal("Get() returned nil without Init()")
	}
	if config.Backend.Name != "auto" {
		t.Errorf("Expected default backend auto, got %s", config.Backend.Name)
	}
}
