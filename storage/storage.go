package storage

import (
	"context"
	"errors"
	"fmt"
)

// Keys of the persisted values.
const (
	OAuthCodeKey       = "oauth_code"
	AccessTokenKey     = "access_token"
	AccessExpiryKey    = "access_expiry"
	RefreshTokenKey    = "refresh_token"
	RefreshExpiryKey   = "refresh_expiry"
	PlatformKey        = "platform"
	MembershipIDKey    = "membership_id"
	ManifestVersionKey = "manifest_version"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable key/value holder for small scalar values.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Supported drivers for Open.
const (
	SQLiteDriver   = "sqlite"
	RedisDriver    = "redis"
	PostgresDriver = "postgres"
	MemoryDriver   = "memory"
)

// Open creates the Store for the named driver. The dsn is a file path for sqlite, a redis URL
// for redis and a connection string for postgres. It is ignored by the memory driver.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", SQLiteDriver:
		return NewSQLiteStore(dsn)
	case RedisDriver:
		return NewRedisStore(dsn), nil
	case PostgresDriver:
		return NewPostgresStore(dsn)
	case MemoryDriver:
		return NewMemoryStore(), nil
	}

	return nil, fmt.Errorf("storage: unknown driver %q", driver)
}

func getOptional(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}

	return v, err
}
