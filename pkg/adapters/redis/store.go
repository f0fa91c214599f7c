package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	backend "github.com/redis/go-redis/v9"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
)

const defaultPrefix = "junit5:"

// records are encoded with nanosecond timestamps so FinishedAt survives a round trip.
var (
	encMode, _ = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	decMode, _ = cbor.DecOptions{}.DecMode()
)

// ResultStore implements ports.ResultStore using Redis.
//
// The records of a run live in a list at <prefix>run:<id>, each one CBOR
// encoded. The sorted set <prefix>runs indexes run IDs by creation time.
type ResultStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a ResultStore.
type Option func(*ResultStore)

// WithTTL expires runs ttl after their last record. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *ResultStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *ResultStore) {
		s.prefix = prefix
	}
}

// WithClock sets the time source used to order runs.
func WithClock(now func() time.Time) Option {
	return func(s *ResultStore) {
		s.now = now
	}
}

// New connects to the Redis server at address.
func New(address, password string, db int, opts ...Option) *ResultStore {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *ResultStore {
	s := &ResultStore{
		client: client,
		prefix: defaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ResultStore) key(runID string) string {
	return s.prefix + "run:" + runID
}

func (s *ResultStore) indexKey() string {
	return s.prefix + "runs"
}

// Save appends rec to the list of runID and refreshes its TTL. The first
// record registers the run in the index.
func (s *ResultStore) Save(ctx context.Context, runID string, rec ports.ResultRecord) error {
	data, err := encMode.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key(runID), data)
	pipe.ZAddNX(ctx, s.indexKey(), backend.Z{
		Score:  float64(s.now().UnixMilli()),
		Member: runID,
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(runID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save result to redis: %w", err)
	}
	return nil
}

// List decodes every record of runID in the order they were saved.
func (s *ResultStore) List(ctx context.Context, runID string) ([]ports.ResultRecord, error) {
	values, err := s.client.LRange(ctx, s.key(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list results from redis: %w", err)
	}
	if len(values) == 0 {
		return nil, domain.ErrRunNotFound
	}

	records := make([]ports.ResultRecord, len(values))
	for i, v := range values {
		if err := decMode.Unmarshal([]byte(v), &records[i]); err != nil {
			return nil, fmt.Errorf("failed to decode result %d of run %s: %w", i, runID, err)
		}
	}
	return records, nil
}

// Runs returns the run IDs, most recent first. Runs older than the TTL are
// pruned from the index on the way.
func (s *ResultStore) Runs(ctx context.Context) ([]string, error) {
	if s.ttl > 0 {
		cutoff := s.now().Add(-s.ttl).UnixMilli()
		err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("(%d", cutoff)).Err()
		if err != nil {
			return nil, fmt.Errorf("failed to prune expired runs: %w", err)
		}
	}

	runs, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Delete removes the records of runID and its index entry.
func (s *ResultStore) Delete(ctx context.Context, runID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, backend.Nil) {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *ResultStore) Close() error {
	return s.client.Close()
}
