package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// ErrQuotaExceeded is returned by Put when the backend is out of space.
var ErrQuotaExceeded = errors.New("storage: quota exceeded")

// KV is durable key-value storage for serialized cache entries.
// Keys are opaque strings; values are raw bytes.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists every stored key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures a KV backend.
type Config struct {
	Backend string `mapstructure:"backend" yaml:"backend" json:"backend"`

	// local
	BaseDir   string `mapstructure:"base_dir" yaml:"base_dir" json:"base_dir"`
	BackupDir string `mapstructure:"backup_dir" yaml:"backup_dir,omitempty" json:"backup_dir,omitempty"`

	// memory
	MaxBytes int `mapstructure:"max_bytes" yaml:"max_bytes,omitempty" json:"max_bytes,omitempty"`

	// s3, gcs, azure
	Bucket    string `mapstructure:"bucket" yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region    string `mapstructure:"region" yaml:"region,omitempty" json:"region,omitempty"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Account   string `mapstructure:"account" yaml:"account,omitempty" json:"account,omitempty"`
	Container string `mapstructure:"container" yaml:"container,omitempty" json:"container,omitempty"`
	SASToken  string `mapstructure:"sas_token" yaml:"sas_token,omitempty" json:"-"`
}
