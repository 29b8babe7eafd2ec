package trust

import "errors"

const (
	DefaultHistoryDepth    = 256
	DefaultFutureTolerance = 3
)

type Config struct {
	// HistoryDepth is how many blocks behind the tip can still be queried.
	HistoryDepth uint64 `toml:"history-depth" yaml:"history-depth" cli:"trust.history-depth"`
	// FutureTolerance is how many blocks ahead of the tip a query may wait for.
	FutureTolerance uint64 `toml:"future-tolerance" yaml:"future-tolerance" cli:"trust.future-tolerance"`
	// HeaderCacheSize bounds the verified headers kept by hash. Zero means twice the history depth.
	HeaderCacheSize int `toml:"header-cache-size" yaml:"header-cache-size" cli:"trust.header-cache-size"`
}

func DefaultConfig() Config {
	return Config{
		HistoryDepth:    DefaultHistoryDepth,
		FutureTolerance: DefaultFutureTolerance,
	}
}

func (c *Config) Check() error {
	if c.HistoryDepth == 0 {
		return errors.New("history depth must be positive")
	}
	if c.HeaderCacheSize < 0 {
		return errors.New("header cache size must not be negative")
	}
	return nil
}

func (c *Config) headerCacheSize() int {
	if c.HeaderCacheSize > 0 {
		return c.HeaderCacheSize
	}
	return int(2*c.HistoryDepth) + 16
}
