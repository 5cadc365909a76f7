package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/sirupsen/logrus"
)

const driverViewGenerationKey = "DriverViewGeneration"

var ErrLockNotObtained = errors.New("resource is locked by another operation")

// RedisLocker serializes work on a key across instances.
// When Redis is not connected it degrades to no locking.
type RedisLocker struct {
	Prefix string
}

// Obtain retries briefly before giving up with ErrLockNotObtained. The returned release func is never nil.
func (l RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		logger.WithFields(logrus.Fields{
			"field": "RedisLocker",
			"key":   key,
		}).Warn("redis lock not ready; proceeding without redis lock")
		return func() {}, nil
	}

	lockKey := fmt.Sprintf("%s:%s", l.Prefix, key)
	lock, err := locker.Obtain(ctx, lockKey, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 10),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	} else if err != nil {
		return nil, err
	}

	return func() {
		// Release on a fresh context so a cancelled request still frees the lock.
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			config.LogError(logger, "redisHelper.go", "RedisLocker.Obtain", "release", lockKey, releaseErr)
		}
	}, nil
}

// BumpDriverViewGeneration marks the merged driver view as outdated; returns the new generation.
func BumpDriverViewGeneration(ctx context.Context) (int64, error) {
	return config.GetRedisCounter(ctx, driverViewGenerationKey)
}

func CurrentDriverViewGeneration(ctx context.Context) (int64, error) {
	return config.PeekRedisCounter(ctx, driverViewGenerationKey)
}
