package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/garyburd/redigo/redis"
	raven "github.com/getsentry/raven-go"
	"github.com/kpango/glg"
)

const (
	preferencesPrefix = "tracker"
)

// RedisStore will be a Store backed by a Redis server, values are kept under
// "tracker:<key>". The redigo pool does not take a context so ctx is unused.
type RedisStore struct {
	*redis.Pool
}

// NewRedisStore will create a new store instance and the required Redis connection pool.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{&redis.Pool{
		MaxIdle:     3,
		MaxActive:   10,
		IdleTimeout: 240 * time.Second,
		Dial:        func() (redis.Conn, error) { return redis.DialURL(addr) },
	}}
}

func redisKey(key string) string {
	return fmt.Sprintf("%s:%s", preferencesPrefix, key)
}

// Get will read a value from Redis, ErrNotFound is returned when the key is not set.
func (r *RedisStore) Get(_ context.Context, key string) (string, error) {

	conn := r.Pool.Get()
	defer conn.Close()

	reply, err := redis.String(conn.Do("GET", redisKey(key)))
	if err == redis.ErrNil {
		return "", ErrNotFound
	} else if err != nil {
		raven.CaptureError(err, nil)
		glg.Errorf("Failed to read %s from Redis: %s", key, err.Error())
		return "", err
	}

	return reply, nil
}

// Set will persist the given value.
func (r *RedisStore) Set(_ context.Context, key, value string) error {

	conn := r.Pool.Get()
	defer conn.Close()

	_, err := conn.Do("SET", redisKey(key), value)
	if err != nil {
		raven.CaptureError(err, nil)
		glg.Errorf("Failed to set %s: %s", key, err.Error())
	}

	return err
}

// Delete will remove the specified keys from Redis.
func (r *RedisStore) Delete(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	conn := r.Pool.Get()
	defer conn.Close()

	args := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		args = append(args, redisKey(k))
	}

	_, err := conn.Do("DEL", args...)
	if err != nil {
		raven.CaptureError(err, nil)
		glg.Errorf("Failed to delete keys from Redis: %s", err.Error())
	}

	return err
}
