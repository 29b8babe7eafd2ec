package notary

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

type Kind string

const (
	KindNone Kind = "none"
	KindLog  Kind = "log"
	KindHTTP Kind = "http"
	KindS3   Kind = "s3"
)

var Kinds = []Kind{KindNone, KindLog, KindHTTP, KindS3}

const DefaultQueueSize = 64

type Config struct {
	Kind      Kind          `toml:"kind" yaml:"kind" cli:"notary.kind"`
	HTTPURL   string        `toml:"http-url" yaml:"http-url" cli:"notary.http-url"`
	Timeout   time.Duration `toml:"timeout" yaml:"timeout" cli:"notary.timeout"`
	S3        S3Config      `toml:"s3" yaml:"s3"`
	Setup     SetupInfo     `toml:"setup" yaml:"setup"`
	QueueSize int           `toml:"queue-size" yaml:"queue-size" cli:"notary.queue-size"`
}

func DefaultConfig() Config {
	return Config{
		Kind:      KindNone,
		Timeout:   10 * time.Second,
		QueueSize: DefaultQueueSize,
	}
}

func (c *Config) Enabled() bool {
	return c.Kind != KindNone && c.Kind != ""
}

func (c *Config) Check() error {
	switch c.Kind {
	case KindNone, "", KindLog:
	case KindHTTP:
		if c.HTTPURL == "" {
			return errors.New("http notary requires a URL")
		}
	case KindS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return errors.New("s3 notary requires an endpoint and a bucket")
		}
	default:
		return fmt.Errorf("unknown notary kind %q, expected one of %v", c.Kind, Kinds)
	}
	if c.Enabled() && c.QueueSize <= 0 {
		return errors.New("notary queue size must be positive")
	}
	return nil
}

// NewSink creates the configured sink. It returns nil if notarization is disabled.
func NewSink(lgr log.Logger, cfg Config) (Sink, error) {
	switch cfg.Kind {
	case KindLog:
		return NewLogSink(lgr), nil
	case KindHTTP:
		return NewHTTPSink(cfg.HTTPURL, cfg.Timeout), nil
	case KindS3:
		return NewS3Sink(cfg.S3)
	case KindNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown notary kind %q", cfg.Kind)
}
