package config

import (
	"time"

	"github.com/kbforge/kbsync/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Source   SourceConfig   `mapstructure:"source" yaml:"source"`
	Segment  SegmentConfig  `mapstructure:"segment" yaml:"segment"`
	State    StateConfig    `mapstructure:"state" yaml:"state"`
	Archive  ArchiveConfig  `mapstructure:"archive" yaml:"archive"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Index    IndexConfig    `mapstructure:"index" yaml:"index"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
}

// SourceConfig contains knowledge-base API settings
type SourceConfig struct {
	APIURL   string        `mapstructure:"api_url" yaml:"api_url"`
	PageSize int           `mapstructure:"page_size" yaml:"page_size"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SegmentConfig contains segmentation settings
type SegmentConfig struct {
	MaxChars int `mapstructure:"max_chars" yaml:"max_chars"`
}

// StateConfig contains identity snapshot settings
type StateConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

// ArchiveConfig contains on-disk article archive settings
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Directory string `mapstructure:"directory" yaml:"directory"`
	Cleanup   bool   `mapstructure:"cleanup" yaml:"cleanup"`
}

// CacheConfig contains page cache settings
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Directory string        `mapstructure:"directory" yaml:"directory"`
}

// IndexConfig contains remote vector store settings
type IndexConfig struct {
	APIKey        string        `mapstructure:"api_key" yaml:"api_key"`
	VectorStoreID string        `mapstructure:"vector_store_id" yaml:"vector_store_id"`
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ScheduleConfig contains scheduled-run settings
type ScheduleConfig struct {
	Cron string `mapstructure:"cron" yaml:"cron"`
}

// Validate validates the configuration and applies fallbacks for
// out-of-range values.
func (c *Config) Validate() error {
	if c.Source.APIURL == "" {
		return domain.NewConfigurationError("source.api_url", "must be set")
	}
	if c.Source.PageSize < 1 {
		c.Source.PageSize = DefaultPageSize
	}
	if c.Source.Timeout < time.Second {
		c.Source.Timeout = DefaultSourceTimeout
	}
	if c.Segment.MaxChars <= 0 {
		return domain.NewConfigurationError("segment.max_chars", "must be positive")
	}
	if c.Cache.TTL < time.Minute {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Index.Timeout < time.Second {
		c.Index.Timeout = DefaultIndexTimeout
	}
	return nil
}
