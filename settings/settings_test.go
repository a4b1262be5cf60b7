package settings_test

import (
	"path/filepath"
	"testing"

	"github.com/hexwalker/vertex/settings"
)

func TestSettings_LoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := settings.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.GetInt("memoryScan.readerThreads"); got != 4 {
		t.Errorf("readerThreads default = %d, want 4", got)
	}
	if got := s.GetBool("general.enableLogging"); !got {
		t.Error("enableLogging default should be true")
	}
}

func TestSettings_SaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s := settings.New(path)
	s.Set("general.theme", 2)
	s.Set("memoryScan.readerThreads", 16)
	s.Set("plugins.activePlugin", "mock")
	s.Set("plugins.pluginPaths", []string{"/opt/plugins/a.so", "/opt/plugins/b.so"})

	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := settings.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded.GetInt("general.theme"); got != 2 {
		t.Errorf("theme = %d, want 2", got)
	}
	if got := loaded.GetInt("memoryScan.readerThreads"); got != 16 {
		t.Errorf("readerThreads = %d, want 16", got)
	}
	if got := loaded.GetString("plugins.activePlugin"); got != "mock" {
		t.Errorf("activePlugin = %q, want mock", got)
	}
	paths := loaded.GetStringSlice("plugins.pluginPaths")
	if len(paths) != 2 || paths[0] != "/opt/plugins/a.so" {
		t.Errorf("pluginPaths = %v, want two entries starting with a.so", paths)
	}
}

func TestSettings_SaveIsAtomicNoStaleTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	s := settings.New(path)
	s.Set("general.theme", 1)
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, ".settings-*"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("leftover temp files after Save: %v", matches)
	}
}

func TestSettings_SetOverridesDefault(t *testing.T) {
	s := settings.New(filepath.Join(t.TempDir(), "settings.json"))
	if got := s.GetInt("general.theme"); got != 0 {
		t.Fatalf("default theme = %d, want 0", got)
	}
	s.Set("general.theme", 1)
	if got := s.GetInt("general.theme"); got != 1 {
		t.Errorf("theme after Set = %d, want 1", got)
	}
}

func TestSettings_IsSetIsTrueForKnownKeys(t *testing.T) {
	s := settings.New(filepath.Join(t.TempDir(), "settings.json"))
	if !s.IsSet("general.theme") {
		t.Error("expected a key with a registered default to report IsSet = true")
	}
	if s.IsSet("general.unknownKey") {
		t.Error("expected an unrecognized key to report IsSet = false")
	}
}
