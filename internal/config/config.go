package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "macropipe/internal/errors"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// MACROPIPE_SERVER_PORT or MACROPIPE_FRED_API_KEY.
const envPrefix = "MACROPIPE"

// Config is the complete application configuration. Precedence is defaults,
// then the YAML file, then environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
	FRED     FREDConfig     `yaml:"fred" envconfig:"FRED"`
	Calendar CalendarConfig `yaml:"calendar" envconfig:"CALENDAR"`
	Schedule ScheduleConfig `yaml:"schedule" envconfig:"SCHEDULE"`
	Datasets DatasetsConfig `yaml:"datasets" envconfig:"-"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RunTimeout      time.Duration `yaml:"run_timeout" envconfig:"RUN_TIMEOUT"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// FREDConfig configures the FRED client.
type FREDConfig struct {
	APIKey            string        `yaml:"api_key" envconfig:"API_KEY"`
	BaseURL           string        `yaml:"base_url" envconfig:"BASE_URL"`
	Timeout           time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	MaxAttempts       int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" validate:"gte=1"`
	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND"`
	Burst             int           `yaml:"burst" envconfig:"BURST"`
	CacheTTL          time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	ObservationStart  string        `yaml:"observation_start" envconfig:"OBSERVATION_START"`
}

// CalendarConfig selects the business calendar. Kind "us-federal" builds the
// federal holiday calendar for [FromYear, ToYear]; kind "custom" uses the
// explicit holiday list; kind "weekdays" uses no holidays at all.
type CalendarConfig struct {
	Kind     string   `yaml:"kind" envconfig:"KIND" validate:"oneof=us-federal custom weekdays"`
	FromYear int      `yaml:"from_year" envconfig:"FROM_YEAR"`
	ToYear   int      `yaml:"to_year" envconfig:"TO_YEAR"`
	Holidays []string `yaml:"holidays" envconfig:"HOLIDAYS"`
}

// ScheduleConfig controls the in-process run scheduler.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Cron    string `yaml:"cron" envconfig:"CRON"`
}

// ThresholdConfig is the anomaly band for one column, in the units the
// column has after cleaning.
type ThresholdConfig struct {
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
	MaxDelta float64 `yaml:"max_delta"`
}

// MacroDataset describes one macro series to fetch and clean.
type MacroDataset struct {
	// SeriesID is the FRED identifier; empty for derived datasets.
	SeriesID string `yaml:"series_id"`
	// Name is the logical series name in cleaned output.
	Name string `yaml:"name" validate:"required"`
	// File is the raw CSV the processor reads, relative to the raw dir.
	File string `yaml:"file"`
	// Spread marks a derived dataset and names its kind.
	Spread string `yaml:"spread" validate:"omitempty,oneof=credit yield_curve"`
	// SpreadOf names the two datasets the spread is derived from, minuend
	// first.
	SpreadOf []string `yaml:"spread_of" validate:"omitempty,len=2"`

	NormalizeFields []string                   `yaml:"normalize_fields"`
	Thresholds      map[string]ThresholdConfig `yaml:"thresholds"`
}

// PriceDataset describes one price series.
type PriceDataset struct {
	Symbol string `yaml:"symbol" validate:"required"`
	// File is the input file relative to the raw dir; .xlsx loads as a
	// workbook, anything else as CSV.
	File string `yaml:"file" validate:"required"`
	// Intraday marks minute-bar input that needs daily aggregation.
	Intraday bool `yaml:"intraday"`
	// Axis marks the dataset whose dates become the merged table's axis.
	// Exactly one price dataset must set it.
	Axis bool `yaml:"axis"`
}

// DatasetsConfig lists everything a pipeline run consumes.
type DatasetsConfig struct {
	Macros []MacroDataset `yaml:"macros" validate:"dive"`
	Prices []PriceDataset `yaml:"prices" validate:"dive"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RunTimeout:      30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/macropipe.log",
		},
		Paths: defaultPaths(),
		FRED: FREDConfig{
			BaseURL:           "https://api.stlouisfed.org/fred/series/observations",
			Timeout:           30 * time.Second,
			MaxAttempts:       3,
			RequestsPerSecond: 2,
			Burst:             4,
			CacheTTL:          15 * time.Minute,
			ObservationStart:  "2000-01-01",
		},
		Calendar: CalendarConfig{
			Kind:     "us-federal",
			FromYear: 2000,
			ToYear:   2035,
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Cron:    "0 22 * * 1-5",
		},
		Datasets: DatasetsConfig{
			Macros: []MacroDataset{
				{SeriesID: "DGS10", Name: "dgs10", File: "dgs10.csv"},
				{SeriesID: "DGS2", Name: "dgs2", File: "dgs2.csv"},
				{SeriesID: "BAA", Name: "baa", File: "baa.csv"},
				{SeriesID: "AAA", Name: "aaa", File: "aaa.csv"},
				{Name: "credit_spread_baa_aaa", Spread: "credit", SpreadOf: []string{"baa", "aaa"}},
				{Name: "yield_curve_10y_2y_spread", Spread: "yield_curve", SpreadOf: []string{"dgs10", "dgs2"}},
			},
			Prices: []PriceDataset{
				{Symbol: "SPY", File: "spy_1min.csv", Intraday: true, Axis: true},
				{Symbol: "VIX", File: "vix.csv"},
			},
		},
	}
}

// Load reads configuration from the first config file found, then applies
// environment overrides, then validates.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom loads configuration from an explicit file path. An empty path
// skips the file and uses defaults plus environment only.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("parse config file %s", path), err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("process environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks structural validity plus the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewConfigError("invalid configuration", err)
	}

	if c.Calendar.Kind == "us-federal" && c.Calendar.FromYear > c.Calendar.ToYear {
		return apperrors.NewConfigError(
			fmt.Sprintf("calendar from_year %d after to_year %d", c.Calendar.FromYear, c.Calendar.ToYear), nil)
	}
	for _, h := range c.Calendar.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return apperrors.NewConfigError(fmt.Sprintf("bad holiday date %q", h), err)
		}
	}

	if c.FRED.ObservationStart != "" {
		if _, err := time.Parse("2006-01-02", c.FRED.ObservationStart); err != nil {
			return apperrors.NewConfigError(
				fmt.Sprintf("bad fred observation_start %q", c.FRED.ObservationStart), err)
		}
	}

	names := make(map[string]bool)
	for _, m := range c.Datasets.Macros {
		if names[m.Name] {
			return apperrors.NewConfigError(fmt.Sprintf("duplicate dataset name %q", m.Name), nil)
		}
		names[m.Name] = true
		if m.Spread == "" && m.SeriesID == "" && m.File == "" {
			return apperrors.NewConfigError(
				fmt.Sprintf("dataset %q has no series_id, file or spread", m.Name), nil)
		}
		if m.Spread != "" && len(m.SpreadOf) != 2 {
			return apperrors.NewConfigError(
				fmt.Sprintf("spread dataset %q must name exactly two source datasets", m.Name), nil)
		}
	}
	for _, m := range c.Datasets.Macros {
		for _, src := range m.SpreadOf {
			if !names[src] {
				return apperrors.NewConfigError(
					fmt.Sprintf("spread dataset %q references unknown dataset %q", m.Name, src), nil)
			}
		}
	}

	if len(c.Datasets.Prices) > 0 {
		axes := 0
		for _, p := range c.Datasets.Prices {
			if p.Axis {
				axes++
			}
		}
		if axes != 1 {
			return apperrors.NewConfigError(
				fmt.Sprintf("exactly one price dataset must be the merge axis, found %d", axes), nil)
		}
	}

	return nil
}

// ObservationStartTime returns the parsed FRED observation start. Validate
// has already checked the format.
func (c *Config) ObservationStartTime() time.Time {
	t, _ := time.Parse("2006-01-02", c.FRED.ObservationStart)
	return t
}

// HolidayDates returns the parsed custom holiday list.
func (c *Config) HolidayDates() []time.Time {
	out := make([]time.Time, 0, len(c.Calendar.Holidays))
	for _, h := range c.Calendar.Holidays {
		if t, err := time.Parse("2006-01-02", h); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// AxisPrice returns the price dataset marked as the merge axis.
func (c *Config) AxisPrice() (PriceDataset, bool) {
	for _, p := range c.Datasets.Prices {
		if p.Axis {
			return p, true
		}
	}
	return PriceDataset{}, false
}

// findConfigFile checks the conventional locations for a config file.
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}
