package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type toolTable map[string]map[string]interface{}

// ToolSettings holds per-tool settings from the "tools" section of the tool
// configuration file, e.g.
//
//	tools:
//	  echo:
//	    prefix: "Echo: "
//
// Reads go through an atomically swapped snapshot, so tool handlers may call
// Tool concurrently with a reload.
type ToolSettings struct {
	v       *viper.Viper
	logger  *slog.Logger
	current atomic.Pointer[toolTable]
}

// LoadToolSettings reads path. A missing file yields empty settings.
func LoadToolSettings(path string, logger *slog.Logger) (*ToolSettings, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ToolSettings{logger: logger}
	s.current.Store(&toolTable{})

	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logger.Debug("tool config file not found; using empty tool settings", slog.String("path", path))
		return s, nil
	}

	s.v = viper.New()
	s.v.SetConfigFile(path)
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the configuration file.
func (s *ToolSettings) Reload() error {
	if s.v == nil {
		return nil
	}
	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read tool config: %w", err)
	}
	s.apply()
	return nil
}

// Watch reloads settings whenever the file changes on disk.
func (s *ToolSettings) Watch() {
	if s.v == nil {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		s.logger.Info("tool config changed", slog.String("path", e.Name), slog.String("op", e.Op.String()))
		s.apply()
	})
	s.v.WatchConfig()
}

// Tool returns the settings for one tool, or an empty map.
func (s *ToolSettings) Tool(name string) map[string]interface{} {
	if cfg, ok := (*s.current.Load())[name]; ok {
		return cfg
	}
	return map[string]interface{}{}
}

// String returns a string setting for a tool, or fallback.
func (s *ToolSettings) String(tool, key, fallback string) string {
	if v, ok := s.Tool(tool)[key].(string); ok {
		return v
	}
	return fallback
}

func (s *ToolSettings) apply() {
	next := toolTable{}
	for name, raw := range s.v.GetStringMap("tools") {
		if cfg, ok := raw.(map[string]interface{}); ok {
			next[name] = cfg
		}
	}
	s.current.Store(&next)
}
