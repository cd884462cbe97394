package config

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Catalog    CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Mask       MaskConfig     `yaml:"mask" mapstructure:"mask"`
	Validation ValidateConfig `yaml:"validate" mapstructure:"validate"`
	Geometry   GeometryConfig `yaml:"geometry" mapstructure:"geometry"`
	Emit       EmitConfig     `yaml:"emit" mapstructure:"emit"`
	Sink       SinkConfig     `yaml:"sink" mapstructure:"sink"`
	Data       DataConfig     `yaml:"data" mapstructure:"data"`
	Log        LogConfig      `yaml:"log" mapstructure:"log"`
	Metrics    MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// CatalogConfig configures access to the Map Warper catalog API.
type CatalogConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	PerPage           int     `yaml:"per_page" mapstructure:"per_page"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	PageDelayMs       int     `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	LayerDelayMs      int     `yaml:"layer_delay_ms" mapstructure:"layer_delay_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BreakerThreshold  int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	StrictPages       bool    `yaml:"strict_pages" mapstructure:"strict_pages"`
	IncludeMapLayers  bool    `yaml:"include_map_layers" mapstructure:"include_map_layers"`
}

// Timeout is the per-request timeout.
func (c CatalogConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// InitialBackoff is the first retry wait.
func (c CatalogConfig) InitialBackoff() time.Duration { return ms(c.InitialBackoffMs) }

// MaxBackoff caps the retry wait.
func (c CatalogConfig) MaxBackoff() time.Duration { return ms(c.MaxBackoffMs) }

// PageDelay is slept after every catalog page.
func (c CatalogConfig) PageDelay() time.Duration { return ms(c.PageDelayMs) }

// LayerDelay is slept after every layer page.
func (c CatalogConfig) LayerDelay() time.Duration { return ms(c.LayerDelayMs) }

// MaskConfig configures mask resolution.
type MaskConfig struct {
	Enabled           bool   `yaml:"enabled" mapstructure:"enabled"`
	GDALTransformPath string `yaml:"gdaltransform_path" mapstructure:"gdaltransform_path"`
	MaskURLTemplate   string `yaml:"mask_url_template" mapstructure:"mask_url_template"`
	GCPsURLTemplate   string `yaml:"gcps_url_template" mapstructure:"gcps_url_template"`
	DelayMs           int    `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// Delay is slept after every mask resolution.
func (c MaskConfig) Delay() time.Duration { return ms(c.DelayMs) }

// ValidateConfig configures the validation rules. A rules file, when set,
// replaces the inline settings.
type ValidateConfig struct {
	RulesFile            string   `yaml:"rules_file" mapstructure:"rules_file"`
	Disabled             []string `yaml:"disabled" mapstructure:"disabled"`
	WarpedStatuses       []string `yaml:"warped_statuses" mapstructure:"warped_statuses"`
	UnmaskedWarnStatuses []string `yaml:"unmasked_warn_statuses" mapstructure:"unmasked_warn_statuses"`
}

// GeometryConfig configures geometry post-processing.
type GeometryConfig struct {
	Clip                bool    `yaml:"clip" mapstructure:"clip"`
	ClipTolerance       float64 `yaml:"clip_tolerance" mapstructure:"clip_tolerance"`
	AreaDecimals        int     `yaml:"area_decimals" mapstructure:"area_decimals"`
	CoordinatePrecision int     `yaml:"coordinate_precision" mapstructure:"coordinate_precision"`
	OnClipFailure       string  `yaml:"on_clip_failure" mapstructure:"on_clip_failure"`
}

// EmitConfig holds the URL templates written into objects.
type EmitConfig struct {
	TileURLTemplate      string `yaml:"tile_url_template" mapstructure:"tile_url_template"`
	LayerTileURLTemplate string `yaml:"layer_tile_url_template" mapstructure:"layer_tile_url_template"`
	ItemURLTemplate      string `yaml:"item_url_template" mapstructure:"item_url_template"`
}

// SinkConfig selects the output backend.
type SinkConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DataConfig locates the intermediate and output files.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsConfig configures the Prometheus textfile written after each run.
// An empty Textfile disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

var (
	sinkDrivers     = []string{"ndjson", "sqlite", "postgres", "shapefile"}
	clipPolicies    = []string{"emit", "log"}
	logFormats      = []string{"json", "console"}
	defaultStatuses = []string{"warped", "published"}
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MAPWARPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("catalog.base_url", "http://maps.nypl.org/warper/")
	v.SetDefault("catalog.per_page", 250)
	v.SetDefault("catalog.user_agent", "mapwarper-cli/1.0")
	v.SetDefault("catalog.timeout_secs", 25)
	v.SetDefault("catalog.max_attempts", 5)
	v.SetDefault("catalog.initial_backoff_ms", 500)
	v.SetDefault("catalog.max_backoff_ms", 30000)
	v.SetDefault("catalog.page_delay_ms", 2000)
	v.SetDefault("catalog.layer_delay_ms", 200)
	v.SetDefault("catalog.requests_per_second", 0)
	v.SetDefault("catalog.breaker_threshold", 0)
	v.SetDefault("catalog.strict_pages", false)
	v.SetDefault("catalog.include_map_layers", false)
	v.SetDefault("mask.enabled", true)
	v.SetDefault("mask.gdaltransform_path", "gdaltransform")
	v.SetDefault("mask.mask_url_template", "shared/masks/{id}.gml.ol")
	v.SetDefault("mask.gcps_url_template", "maps/{id}/gcps.json")
	v.SetDefault("mask.delay_ms", 100)
	v.SetDefault("validate.rules_file", "")
	v.SetDefault("validate.disabled", []string{})
	v.SetDefault("validate.warped_statuses", defaultStatuses)
	v.SetDefault("validate.unmasked_warn_statuses", []string{"warped"})
	v.SetDefault("geometry.clip", false)
	v.SetDefault("geometry.clip_tolerance", 1e-9)
	v.SetDefault("geometry.area_decimals", 5)
	v.SetDefault("geometry.coordinate_precision", 0)
	v.SetDefault("geometry.on_clip_failure", "emit")
	v.SetDefault("emit.tile_url_template", "http://maps.nypl.org/warper/maps/tile/{id}/{z}/{x}/{y}.png")
	v.SetDefault("emit.layer_tile_url_template", "http://maps.nypl.org/warper/layers/tile/{id}/{z}/{x}/{y}.png")
	v.SetDefault("emit.item_url_template", "http://digitalcollections.nypl.org/items/{uuid}")
	v.SetDefault("sink.driver", "ndjson")
	v.SetDefault("data.dir", "data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.textfile", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Command modes accepted by Validate.
const (
	ModeHarvest   = "harvest"
	ModeTransform = "transform"
	ModeRun       = "run"
	ModeProbe     = "probe"
)

// Validate checks the settings the given mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkCatalog := func() {
		if c.Catalog.BaseURL == "" {
			errs = append(errs, "catalog.base_url is required")
		}
		if c.Catalog.PerPage <= 0 {
			errs = append(errs, "catalog.per_page must be > 0")
		}
		if c.Catalog.MaxAttempts <= 0 {
			errs = append(errs, "catalog.max_attempts must be > 0")
		}
		if c.Catalog.TimeoutSecs <= 0 {
			errs = append(errs, "catalog.timeout_secs must be > 0")
		}
		if c.Catalog.RequestsPerSecond < 0 {
			errs = append(errs, "catalog.requests_per_second must be >= 0")
		}
		if c.Catalog.PageDelayMs < 0 || c.Catalog.LayerDelayMs < 0 {
			errs = append(errs, "catalog delays must be >= 0")
		}
	}
	checkTransform := func() {
		if !slices.Contains(sinkDrivers, c.Sink.Driver) {
			errs = append(errs, "sink.driver must be one of "+strings.Join(sinkDrivers, ", "))
		}
		if c.Sink.Driver == "postgres" && c.Sink.DatabaseURL == "" {
			errs = append(errs, "sink.database_url is required for postgres")
		}
		if !slices.Contains(clipPolicies, c.Geometry.OnClipFailure) {
			errs = append(errs, "geometry.on_clip_failure must be one of "+strings.Join(clipPolicies, ", "))
		}
		if c.Geometry.AreaDecimals < 0 {
			errs = append(errs, "geometry.area_decimals must be >= 0")
		}
		if c.Mask.DelayMs < 0 {
			errs = append(errs, "mask.delay_ms must be >= 0")
		}
	}

	switch mode {
	case ModeHarvest:
		checkCatalog()
	case ModeTransform:
		checkTransform()
		// Mask resolution fetches from the catalog.
		if c.Mask.Enabled {
			checkCatalog()
		}
	case ModeRun:
		checkCatalog()
		checkTransform()
	case ModeProbe:
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Metrics.Textfile != "" && !strings.HasSuffix(c.Metrics.Textfile, ".prom") {
		errs = append(errs, "metrics.textfile must end in .prom")
	}
	if mode != ModeProbe && c.Data.Dir == "" {
		errs = append(errs, "data.dir is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	if cfg.Format != "" && !slices.Contains(logFormats, cfg.Format) {
		return eris.Errorf("config: unknown log format %q", cfg.Format)
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
