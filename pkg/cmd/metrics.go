package cmd

import (
	"fmt"

	"github.com/strackan/playbook-engine/pkg/evaluator"
	"github.com/strackan/playbook-engine/pkg/metrics"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// NewMetricReader builds the usage metric source for threshold triggers. An
// empty Redis URL falls back to the metrics snapshot on the customer profile.
func NewMetricReader(redisURL string, p persistence.Persistence) evaluator.MetricReader {
	if redisURL == "" {
		return metrics.NewStoreReader(p.Customers())
	}

	reader, err := metrics.NewRedisReader(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to create Redis metric reader: %w", err))
	}

	return reader
}
