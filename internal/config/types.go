package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds every server-level option once the loader has resolved
// defaults, files, and environment overrides.
type Config struct {
	Server ServerConfig `koanf:"server"`
}

// ServerConfig collects the bootstrap knobs owned by the composition root.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
	Assets  AssetsConfig  `koanf:"assets"`
	Cache   CacheConfig   `koanf:"cache"`
	Images  ImagesConfig  `koanf:"images"`
	Engine  EngineConfig  `koanf:"engine"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation ID wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// AssetsConfig points the service at the directory holding source images.
type AssetsConfig struct {
	Root string `koanf:"root"`
	// WatchInvalidate enables the fsnotify watcher that drops cached
	// derivatives when their source file changes in place. Off by default:
	// cache keys already encode every rendering parameter, so only an
	// in-place overwrite can produce a stale hit.
	WatchInvalidate bool `koanf:"watchInvalidate"`
}

// CacheConfig bounds the in-process derivative cache.
type CacheConfig struct {
	Capacity int    `koanf:"capacity"`
	Policy   string `koanf:"policy"`
}

// ImagesConfig carries the resolver defaults applied when a request omits
// quality or format.
type ImagesConfig struct {
	DefaultQuality int    `koanf:"defaultQuality"`
	DefaultFormat  string `koanf:"defaultFormat"`
}

// EngineConfig selects the transform engine backend.
type EngineConfig struct {
	Backend     string `koanf:"backend"`
	Concurrency int    `koanf:"concurrency"`
}

// Cache eviction policies recognised by Validate and the cache factory.
const (
	CachePolicyFIFO = "fifo"
	CachePolicyLRU  = "lru"
)

// Engine backends recognised by Validate and the engine factory.
const (
	EngineBackendVips     = "vips"
	EngineBackendStandard = "standard"
	EngineBackendOff      = "off"
)

// DefaultConfig returns the baseline configuration applied before files and
// environment variables are layered on top.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Assets: AssetsConfig{
				Root: "./assets",
			},
			Cache: CacheConfig{
				Capacity: 100,
				Policy:   CachePolicyFIFO,
			},
			Images: ImagesConfig{
				DefaultQuality: 80,
				DefaultFormat:  "webp",
			},
			Engine: EngineConfig{
				Backend: EngineBackendStandard,
			},
		},
	}
}

// Validate rejects configurations the runtime cannot honor. It reports the
// first violation so operators can fix settings one at a time.
func (c Config) Validate() error {
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen port %d out of range", c.Server.Listen.Port)
	}
	if strings.TrimSpace(c.Server.Assets.Root) == "" {
		return errors.New("config: assets root required")
	}
	if c.Server.Cache.Capacity <= 0 {
		return fmt.Errorf("config: cache capacity must be positive, got %d", c.Server.Cache.Capacity)
	}
	switch strings.ToLower(c.Server.Cache.Policy) {
	case CachePolicyFIFO, CachePolicyLRU:
	default:
		return fmt.Errorf("config: unsupported cache policy %q", c.Server.Cache.Policy)
	}
	if q := c.Server.Images.DefaultQuality; q < 1 || q > 100 {
		return fmt.Errorf("config: default quality %d outside [1,100]", q)
	}
	switch strings.ToLower(c.Server.Images.DefaultFormat) {
	case "webp", "jpeg", "jpg", "png", "avif":
	default:
		return fmt.Errorf("config: unsupported default format %q", c.Server.Images.DefaultFormat)
	}
	switch strings.ToLower(c.Server.Engine.Backend) {
	case EngineBackendVips, EngineBackendStandard, EngineBackendOff, "":
	default:
		return fmt.Errorf("config: unsupported engine backend %q", c.Server.Engine.Backend)
	}
	if c.Server.Engine.Concurrency < 0 {
		return fmt.Errorf("config: engine concurrency must not be negative, got %d", c.Server.Engine.Concurrency)
	}
	return nil
}
