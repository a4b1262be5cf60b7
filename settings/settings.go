// Package settings is the single dot-path-keyed JSON settings
// document: viper's dynamic dot-path store (`general.theme`,
// `memoryScan.readerThreads`, ...) over a platform-specific directory,
// saved atomically by writing to a temp file and renaming it over the
// target so a crash mid-save can never leave a half-written document.
package settings

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/hexwalker/vertex/internal/vlog"
	"github.com/hexwalker/vertex/vxerr"
)

// Store is the settings document: a viper instance restricted to JSON,
// plus the path it loads from and saves to.
type Store struct {
	v    *viper.Viper
	path string
}

// defaults lists every recognized key's default value (partial list;
// uiState.mainView.* is open-ended and has no fixed defaults).
func defaults() map[string]any {
	return map[string]any{
		"general.theme":                 0,
		"general.enableLogging":         true,
		"memoryScan.readerThreads":      4,
		"memoryScan.threadBufferSizeMB": 4,
		"plugins.pluginPaths":           []string{},
		"plugins.activePlugin":          "",
		"language.activeLanguage":       "en",
		"language.languagePaths":        []string{},
	}
}

// New builds a Store over path with every recognized default
// registered but nothing loaded from disk yet.
func New(path string) *Store {
	v := viper.New()
	v.SetConfigType("json")
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}
	return &Store{v: v, path: path}
}

// DefaultPath resolves the platform-specific settings file location,
// creating its directory if needed, falling back to a relative path on
// any failure.
func DefaultPath() string {
	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
		if dir == "" {
			dir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		dir = filepath.Join(dir, "vertex")
	case "darwin", "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return "settings.json"
		}
		dir = filepath.Join(home, ".config", "vertex")
	default:
		return "settings.json"
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "settings.json"
	}
	return filepath.Join(dir, "settings.json")
}

// Load reads path's JSON document over the registered defaults. A
// missing file is not an error: Load returns a Store with defaults
// only and logs the fallback.
func Load(path string) (*Store, error) {
	log := vlog.For("settings")
	s := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("settings file not found, using defaults", "path", path)
			return s, nil
		}
		return nil, vxerr.Wrap(vxerr.KindFileNotFound, "settings.Load", err)
	}

	if err := s.v.ReadConfig(bytes.NewReader(data)); err != nil {
		log.Warn("settings file is not valid JSON, using defaults", "path", path, "error", err)
		return New(path), vxerr.Wrap(vxerr.KindFsJSONParse, "settings.Load", err)
	}
	return s, nil
}

// Get returns the raw value at key, or nil if neither set nor
// defaulted.
func (s *Store) Get(key string) any { return s.v.Get(key) }

// GetString, GetInt, and GetBool are typed convenience readers over Get.
func (s *Store) GetString(key string) string { return s.v.GetString(key) }
func (s *Store) GetInt(key string) int        { return s.v.GetInt(key) }
func (s *Store) GetBool(key string) bool      { return s.v.GetBool(key) }

// GetStringSlice reads a []string key (pluginPaths, languagePaths).
func (s *Store) GetStringSlice(key string) []string { return s.v.GetStringSlice(key) }

// IsSet reports whether key has a value, either explicitly set or
// from a registered default.
func (s *Store) IsSet(key string) bool { return s.v.IsSet(key) }

// Set assigns key, overriding any default or prior value. It does not
// persist to disk; call Save for that.
func (s *Store) Set(key string, value any) { s.v.Set(key, value) }

// Save writes the current document to s.path atomically: encode to a
// temp file in the same directory, then rename over the target, and
// create the directory first if it doesn't exist.
func (s *Store) Save() error {
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return vxerr.Wrap(vxerr.KindFileNotFound, "settings.Save", err)
		}
	}

	data, err := json.MarshalIndent(s.v.AllSettings(), "", "  ")
	if err != nil {
		return vxerr.Wrap(vxerr.KindFsJSONParse, "settings.Save", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return vxerr.Wrap(vxerr.KindFileNotFound, "settings.Save", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return vxerr.Wrap(vxerr.KindFsJSONParse, "settings.Save", err)
	}
	if err := tmp.Close(); err != nil {
		return vxerr.Wrap(vxerr.KindFsJSONParse, "settings.Save", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return vxerr.Wrap(vxerr.KindFileNotFound, "settings.Save", err)
	}
	return nil
}
