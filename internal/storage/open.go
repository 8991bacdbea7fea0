package storage

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Backend drivers.
const (
	DriverMemory = "memory"
	DriverFS     = "fs"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverS3     = "s3"
)

// Config selects and configures a Store backend.
type Config struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
	S3     S3Config    `yaml:"s3"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// S3Config holds bucket settings for the S3 backend.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Validate validates the store configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverMemory, DriverFS, DriverSQLite, DriverRedis, DriverS3)),
		validation.Field(&c.Path, validation.When(c.Driver == DriverFS || c.Driver == DriverSQLite, validation.Required)),
	); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	switch c.Driver {
	case DriverRedis:
		if err := validation.ValidateStruct(&c.Redis,
			validation.Field(&c.Redis.Addr, validation.Required),
			validation.Field(&c.Redis.DB, validation.Min(0)),
		); err != nil {
			return fmt.Errorf("store.redis: %w", err)
		}
	case DriverS3:
		if err := validation.ValidateStruct(&c.S3,
			validation.Field(&c.S3.Bucket, validation.Required),
		); err != nil {
			return fmt.Errorf("store.s3: %w", err)
		}
	}
	return nil
}

// Open builds the configured backend. The returned close func releases any
// connection the backend holds and is never nil.
func Open(ctx context.Context, cfg Config) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(), noop, nil
	case DriverFS:
		s, err := NewFS(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case DriverSQLite:
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case DriverRedis:
		s, err := DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case DriverS3:
		s, err := NewS3(ctx, S3Options(cfg.S3))
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	default:
		return nil, noop, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
