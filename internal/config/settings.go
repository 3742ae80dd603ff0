package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"roundtable-report/internal/model"
)

// Settings represents the application configuration, read from ROUNDTABLE_* variables
type Settings struct {
	RootDir     string   `envconfig:"ROOT_DIR" default:"."`
	ParamsFile  string   `envconfig:"PARAMS_FILE" default:"params.yml"`
	RefDataFile string   `envconfig:"REFDATA_FILE" default:"data.json"`
	QueriesFile string   `envconfig:"QUERIES_FILE" default:"queries.json"`
	SourceDB    string   `envconfig:"SOURCE_DB" default:"ridership.db"`
	StoreDB     string   `envconfig:"STORE_DB" default:"runs.db"`
	ChunkSize   int      `envconfig:"CHUNK_SIZE" default:"500000"`
	Sinks       []string `envconfig:"SINKS" default:"png,xlsx"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string   `envconfig:"LOG_FORMAT" default:"text"`
	Addr        string   `envconfig:"ADDR" default:":8080"`
}

// LoadSettings loads settings from the environment
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("ROUNDTABLE", &s); err != nil {
		return nil, fmt.Errorf("%w: failed to load settings from env: %w", model.ErrConfig, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", model.ErrConfig, s.ChunkSize)
	}
	for _, sink := range s.Sinks {
		switch strings.TrimSpace(sink) {
		case "png", "xlsx":
		default:
			return fmt.Errorf("%w: unknown sink %q", model.ErrConfig, sink)
		}
	}
	switch strings.ToLower(s.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", model.ErrConfig, s.LogFormat)
	}
	return nil
}

// Path resolves a settings path against the root directory.
func (s *Settings) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.RootDir, p)
}

// HasSink reports whether the named sink is enabled.
func (s *Settings) HasSink(name string) bool {
	for _, sink := range s.Sinks {
		if strings.TrimSpace(sink) == name {
			return true
		}
	}
	return false
}
