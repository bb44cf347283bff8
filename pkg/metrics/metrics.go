// Package metrics provides usage-metric readers for threshold triggers.
// Production reads customer usage counters from Redis; the store-backed
// reader serves development and tests from the customer profile row.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	redis "github.com/redis/go-redis/v9"

	"github.com/strackan/playbook-engine/pkg/persistence"
)

// RedisReader reads usage counters from Redis hashes, one hash per customer.
type RedisReader struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisReader creates a reader against the given Redis URL.
func NewRedisReader(redisURL string) (*RedisReader, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return &RedisReader{
		client:    redis.NewClient(opts),
		keyPrefix: "usage:",
	}, nil
}

// UsageMetric reads one field of the customer's usage hash. A missing key or
// field reports not-found; a non-numeric value is an error.
func (r *RedisReader) UsageMetric(ctx context.Context, customerID, metric string) (float64, bool, error) {
	raw, err := r.client.HGet(ctx, r.keyPrefix+customerID, metric).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("redis read failed: %w", err)
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("metric %q is not numeric: %w", metric, err)
	}

	return value, true, nil
}

// Close releases the Redis connection.
func (r *RedisReader) Close() error {
	return r.client.Close()
}

// StoreReader serves metrics from the customer profile's usage map.
type StoreReader struct {
	customers persistence.CustomerRepository
}

// NewStoreReader creates a reader over the customer repository.
func NewStoreReader(customers persistence.CustomerRepository) *StoreReader {
	return &StoreReader{customers: customers}
}

func (r *StoreReader) UsageMetric(ctx context.Context, customerID, metric string) (float64, bool, error) {
	profile, err := r.customers.GetByID(ctx, customerID)
	if err != nil {
		if persistence.IsCustomerNotFound(err) {
			return 0, false, nil
		}

		return 0, false, err
	}

	value, found := profile.UsageMetrics[metric]

	return value, found, nil
}
