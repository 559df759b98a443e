package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is empty")
	ErrMissingShapefile   = errors.New("loader.shapefile is empty")
)

// Config holds every setting of the server and the loader CLI.
type Config struct {
	Port        string `mapstructure:"port"`
	DatabaseURL string `mapstructure:"database_url"`
	Log         Log    `mapstructure:"log"`
	Redis       Redis  `mapstructure:"redis"`
	HTTP        HTTP   `mapstructure:"http"`
	Admin       Admin  `mapstructure:"admin"`
	Loader      Loader `mapstructure:"loader"`
}

type Log struct {
	// Mode is "dev" or "prod".
	Mode string `mapstructure:"mode"`
	// SlowQuery is the gorm slow query threshold.
	SlowQuery time.Duration `mapstructure:"slow_query"`
}

// Redis configures the GeoJSON list cache. An empty Addr disables it.
type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type HTTP struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables rate limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// Admin guards the reload endpoint. TokenHash is a bcrypt hash of the
// admin token; when empty the admin routes refuse every request.
type Admin struct {
	TokenHash string `mapstructure:"token_hash"`
}

// Loader configures the shapefile import.
type Loader struct {
	Shapefile   string `mapstructure:"shapefile"`
	MappingFile string `mapstructure:"mapping_file"`
	SourceSRID  int    `mapstructure:"source_srid"` // 0 reads the layer's .prj
	Charset     string `mapstructure:"charset"`
	Strict      bool   `mapstructure:"strict"`
	Verbose     bool   `mapstructure:"verbose"`
	Replace     bool   `mapstructure:"replace"`
	BatchSize   int    `mapstructure:"batch_size"`
	Progress    int    `mapstructure:"progress"`
}

// NewViper builds a viper instance with defaults, NBHD_ env overrides and
// the optional YAML config file at path. A missing default config file is
// not an error; a missing explicit path is.
//
// Environment variables use the NBHD_ prefix with dots replaced by
// underscores (NBHD_LOADER_SHAPEFILE). DATABASE_URL and PORT are also read
// without the prefix.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("port", "5050")
	v.SetDefault("database_url", "")
	v.SetDefault("log.mode", "dev")
	v.SetDefault("log.slow_query", "100ms")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("http.allowed_origins", []string{"http://localhost:5173", "http://localhost:5050"})
	v.SetDefault("http.rate_limit", 20.0)
	v.SetDefault("http.rate_burst", 40)
	v.SetDefault("admin.token_hash", "")
	v.SetDefault("loader.shapefile", "data/Neighborhoods.shp")
	v.SetDefault("loader.mapping_file", "")
	v.SetDefault("loader.source_srid", 0)
	v.SetDefault("loader.charset", "")
	v.SetDefault("loader.strict", true)
	v.SetDefault("loader.verbose", true)
	v.SetDefault("loader.replace", false)
	v.SetDefault("loader.batch_size", 100)
	v.SetDefault("loader.progress", 0)

	v.SetEnvPrefix("NBHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database_url", "NBHD_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("port", "NBHD_PORT", "PORT")

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("nbhd")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// FromViper decodes v into a Config.
func FromViper(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Load is NewViper followed by FromViper.
func Load(path string) (Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return Config{}, err
	}
	return FromViper(v)
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// Validate checks the settings the loader cannot run without.
func (l Loader) Validate() error {
	if strings.TrimSpace(l.Shapefile) == "" {
		return ErrMissingShapefile
	}
	if l.SourceSRID < 0 {
		return fmt.Errorf("loader.source_srid must not be negative (got %d)", l.SourceSRID)
	}
	if l.BatchSize < 0 || l.Progress < 0 {
		return errors.New("loader.batch_size and loader.progress must not be negative")
	}
	return nil
}
