package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/swiss-bandmap/pkg/api"
	"github.com/hazyhaar/swiss-bandmap/pkg/dataset"
	"github.com/hazyhaar/swiss-bandmap/pkg/gazetteer"
	"github.com/hazyhaar/swiss-bandmap/pkg/mx3"
)

type config struct {
	OutputDir         string          `yaml:"output_dir"`
	RunlogDB          string          `yaml:"runlog_db"`
	Regions           []string        `yaml:"regions"`
	SimplifyTolerance float64         `yaml:"simplify_tolerance"`
	CacheTTL          time.Duration   `yaml:"cache_ttl"`
	Geography         geographyConfig `yaml:"geography"`
	MX3               mx3.Config      `yaml:"mx3"`
	Serve             serveConfig     `yaml:"serve"`
	Log               logConfig       `yaml:"log"`

	// path of the file the config was read from, empty for defaults.
	source string
}

type geographyConfig struct {
	Sources   []string `yaml:"sources"`
	Normalize string   `yaml:"normalize"`
	Encoding  string   `yaml:"encoding"`

	gazetteer.PropertyKeys `yaml:",inline"`
}

type serveConfig struct {
	Addr           string        `yaml:"addr"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	AdminTokenHash string        `yaml:"admin_token_hash"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() config {
	return config{
		OutputDir:         "data",
		RunlogDB:          "data/runlog.db",
		SimplifyTolerance: dataset.DefaultTolerance,
		CacheTTL:          time.Hour,
		Geography: geographyConfig{
			Sources:      []string{"data/gemeinden.geojson", "data/geo.json"},
			Normalize:    "alnum",
			PropertyKeys: gazetteer.DefaultPropertyKeys(),
		},
		MX3: mx3.Config{
			BaseURL:    mx3.DefaultBaseURL,
			TokenURL:   mx3.DefaultTokenURL,
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			Backoff:    time.Second,
		},
		Serve: serveConfig{
			Addr:       ":8420",
			StaleAfter: api.DefaultStaleAfter,
		},
		Log: logConfig{Level: "info", Format: "auto"},
	}
}

// loadConfig reads path over the defaults. A missing file is not an error.
// API credentials come from CONSUMER_KEY and CONSUMER_SECRET only.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.source = path
	case os.IsNotExist(err):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	cfg.MX3.ConsumerKey = os.Getenv("CONSUMER_KEY")
	cfg.MX3.ConsumerSecret = os.Getenv("CONSUMER_SECRET")

	for i, r := range cfg.Regions {
		cfg.Regions[i] = strings.ToUpper(strings.TrimSpace(r))
	}
	if cfg.OutputDir == "" {
		return cfg, fmt.Errorf("config: output_dir is empty")
	}
	if cfg.SimplifyTolerance < 0 {
		return cfg, fmt.Errorf("config: simplify_tolerance must be >= 0, got %v", cfg.SimplifyTolerance)
	}
	switch cfg.Geography.Normalize {
	case "", "alnum", "alnum_fold":
	default:
		return cfg, fmt.Errorf("config: unknown geography.normalize %q", cfg.Geography.Normalize)
	}
	return cfg, nil
}

// regions returns the configured regions, or every canton.
func (c config) regions() []string {
	if len(c.Regions) > 0 {
		return c.Regions
	}
	return mx3.Cantons
}

func (c config) geoOptions(logger *slog.Logger) gazetteer.Options {
	return gazetteer.Options{
		Keys:      c.Geography.PropertyKeys,
		Normalize: gazetteer.GetNormalizer(c.Geography.Normalize),
		Encoding:  c.Geography.Encoding,
		Logger:    logger,
	}
}

// newLogger builds the process logger: text on a terminal, JSON otherwise,
// unless log.format forces one.
func newLogger(c logConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("config: log.level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	format := c.Format
	if format == "" || format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log.format %q", c.Format)
	}
}

// setup loads the config and builds the logger, exiting on failure.
func setup(path string) (config, *slog.Logger) {
	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bandmap: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bandmap: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	if cfg.source == "" {
		logger.Info("no config file, using defaults", "path", path)
	}
	return cfg, logger
}
