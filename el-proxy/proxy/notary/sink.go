package notary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/go-resty/resty/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg *Message) error
}

// LogSink logs the messages.
type LogSink struct {
	log log.Logger
}

func NewLogSink(lgr log.Logger) *LogSink {
	return &LogSink{log: lgr}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, msg *Message) error {
	s.log.Info("Notarized block", "id", msg.ID, "action", msg.Action,
		"number", msg.Data.Execution.BlockNumber, "hash", msg.Data.Execution.BlockHash, "slot", msg.Tag("Slot"),
		"txs", len(msg.Data.Execution.Transactions))
	return nil
}

// HTTPSink posts the messages as JSON.
type HTTPSink struct {
	client *resty.Client
	url    string
}

func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPSink{client: client, url: url}
}

func (s *HTTPSink) Name() string { return "http" }

func (s *HTTPSink) Deliver(ctx context.Context, msg *Message) error {
	resp, err := s.client.R().SetContext(ctx).SetBody(msg).Post(s.url)
	if err != nil {
		return fmt.Errorf("failed to post message %s: %w", msg.ID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("message %s rejected with %s: %s", msg.ID, resp.Status(), resp.String())
	}
	return nil
}

type S3Config struct {
	Endpoint  string `toml:"endpoint" yaml:"endpoint" cli:"notary.s3.endpoint"`
	Bucket    string `toml:"bucket" yaml:"bucket" cli:"notary.s3.bucket"`
	Prefix    string `toml:"prefix" yaml:"prefix" cli:"notary.s3.prefix"`
	Region    string `toml:"region" yaml:"region" cli:"notary.s3.region"`
	AccessKey string `toml:"access-key" yaml:"access-key" cli:"notary.s3.access-key"`
	SecretKey string `toml:"secret-key" yaml:"secret-key" cli:"notary.s3.secret-key"`
	Secure    bool   `toml:"secure" yaml:"secure" cli:"notary.s3.secure"`
}

// S3Sink stores every message as an object, keyed by block number and hash.
type S3Sink struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &S3Sink{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *S3Sink) Name() string { return "s3" }

func (s *S3Sink) objectKey(msg *Message) string {
	key := fmt.Sprintf("%s-%s.json", msg.Data.Execution.BlockNumber, msg.Data.Execution.BlockHash)
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3Sink) Deliver(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}
	key := s.objectKey(msg)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"message-id": msg.ID.String(), "action": msg.Action},
	})
	if err != nil {
		return fmt.Errorf("failed to store message %s as %s: %w", msg.ID, key, err)
	}
	return nil
}
