package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hemodash/hemodash/internal/dashboard"
	"github.com/hemodash/hemodash/internal/ingest"
)

const (
	versionKey  = "dashboard:version"
	snapshotKey = "dashboard:snapshot"
	bumpChannel = "dashboard.bump"
)

// Snapshot is a known-good dashboard together with the raw text it was built
// from. Version is assigned by the store.
type Snapshot struct {
	Raw      string          `json:"raw"`
	Data     *dashboard.Data `json:"data"`
	Report   ingest.Report   `json:"report"`
	SyncedAt time.Time       `json:"syncedAt"`
	Version  int64           `json:"-"`
}

// Store shares snapshots between processes.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) (int64, error)
	Version(ctx context.Context) (int64, error)
	Load(ctx context.Context) (*Snapshot, error)
}

// RedisStore keeps the latest snapshot under a monotonically increasing
// version and announces every save on a pub/sub channel.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save writes snap and bumps the version in one transaction.
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) (int64, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("syncer: store not configured")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("syncer: encode snapshot: %w", err)
	}
	var incr *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, versionKey)
		pipe.Set(ctx, snapshotKey, raw, 0)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("syncer: save snapshot: %w", err)
	}
	ver := incr.Val()
	if err := s.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err(); err != nil {
		return ver, fmt.Errorf("syncer: publish version: %w", err)
	}
	return ver, nil
}

// Version returns the stored version, 0 when nothing was saved yet.
func (s *RedisStore) Version(ctx context.Context) (int64, error) {
	if s == nil || s.client == nil {
		return 0, nil
	}
	ver, err := s.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Load returns the stored snapshot, or nil when none exists.
func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	vals, err := s.client.MGet(ctx, versionKey, snapshotKey).Result()
	if err != nil {
		return nil, fmt.Errorf("syncer: load snapshot: %w", err)
	}
	rawVer, ok1 := vals[0].(string)
	rawSnap, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return nil, nil
	}
	ver, err := strconv.ParseInt(rawVer, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("syncer: parse version: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(rawSnap), &snap); err != nil {
		return nil, fmt.Errorf("syncer: decode snapshot: %w", err)
	}
	snap.Version = ver
	return &snap, nil
}

// Subscribe calls fn with every version announced by Save until ctx ends.
func (s *RedisStore) Subscribe(ctx context.Context, fn func(version int64)) error {
	if s == nil || s.client == nil {
		return nil
	}
	pubsub := s.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("syncer: subscribe: %w", err)
	}
	defer func() { _ = pubsub.Close() }()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
				fn(ver)
			}
		}
	}
}
