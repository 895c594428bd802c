// Package redis provides a record store implementation backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ejacobg/link-validator/validator"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"strconv"
	"strings"
	"time"
)

const (
	// The hash tag pins every key of a namespace to one cluster slot.
	defaultNamespace = "{linkvalidator}"

	// Separates the content ID from the URL inside a member name.
	memberSep = "\x00"

	defaultDialTimeout = 5 * time.Second

	// Clear gives up after this many conflicting concurrent writes.
	maxClearAttempts = 10
)

// Compile-time check for ensuring Store implements validator.Store.
var _ validator.Store = (*Store)(nil)

// payload is the JSON representation of a record.
type payload struct {
	ID        string    `json:"id"`
	ContentID string    `json:"content_id"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
}

// Store implements a record store on top of Redis. Multi-key mutations run
// as Lua scripts so that each operation is applied atomically.
type Store struct {
	rdb redis.UniversalClient
	ns  string
}

// NewStore connects to the Redis instance at redisURL, e.g.
// redis://:password@localhost:6379/0, and verifies connectivity.
func NewStore(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()
	if err = rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewStoreWithClient(rdb, defaultNamespace), nil
}

// NewStoreWithClient returns a Store that uses an existing client. All keys
// are prefixed with ns.
func NewStoreWithClient(rdb redis.UniversalClient, ns string) *Store {
	return &Store{rdb: rdb, ns: ns}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) key(name string) string {
	return s.ns + ":" + name
}

func (s *Store) contentKeyPrefix() string {
	return s.key("content:")
}

// keys returns the KEYS array expected by the scripts for contentID.
func (s *Store) keys(contentID string) []string {
	return []string{
		s.key("records"),
		s.key("order"),
		s.key("checked"),
		s.key("contents"),
		s.key("seq"),
		s.contentKeyPrefix() + contentID,
	}
}

func member(r *validator.Record) string {
	return r.ContentID + memberSep + r.URL
}

func encode(r *validator.Record, id uuid.UUID) (string, string, error) {
	data, err := json.Marshal(payload{
		ID:        id.String(),
		ContentID: r.ContentID,
		URL:       r.URL,
		Status:    string(r.Status),
		CheckedAt: r.CheckedAt.UTC(),
	})
	if err != nil {
		return "", "", err
	}
	return string(data), strconv.FormatInt(r.CheckedAt.UnixMilli(), 10), nil
}

// InsertIfAbsent stores r unless a record for the same content ID and URL
// already exists.
func (s *Store) InsertIfAbsent(ctx context.Context, r *validator.Record) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}

	id := uuid.New()
	data, checked, err := encode(r, id)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}

	n, err := insertScript.Run(ctx, s.rdb, s.keys(r.ContentID), r.ContentID, member(r), data, checked).Int()
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	r.ID = id
	return true, nil
}

// ReplaceContent atomically swaps the records of contentID for records.
func (s *Store) ReplaceContent(ctx context.Context, contentID string, records []*validator.Record) (int, error) {
	var (
		ids  = make([]uuid.UUID, len(records))
		args = []interface{}{contentID}
	)
	for i, r := range records {
		if r.ContentID != contentID {
			return 0, fmt.Errorf("replace content: record for %q does not belong to %q", r.ContentID, contentID)
		}
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("replace content: %w", err)
		}

		ids[i] = uuid.New()
		data, checked, err := encode(r, ids[i])
		if err != nil {
			return 0, fmt.Errorf("replace content: %w", err)
		}
		args = append(args, member(r), data, checked)
	}

	flags, err := replaceScript.Run(ctx, s.rdb, s.keys(contentID), args...).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("replace content: %w", err)
	}

	var inserted int
	for i, flag := range flags {
		if flag == 1 {
			records[i].ID = ids[i]
			inserted++
		}
	}
	return inserted, nil
}

// DeleteByContent removes all records for contentID.
func (s *Store) DeleteByContent(ctx context.Context, contentID string) error {
	if err := deleteScript.Run(ctx, s.rdb, s.keys(contentID), contentID).Err(); err != nil {
		return fmt.Errorf("delete by content: %w", err)
	}
	return nil
}

// ContentIDs returns the distinct content IDs that own at least one record.
func (s *Store) ContentIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, s.key("contents")).Result()
	if err != nil {
		return nil, fmt.Errorf("content IDs: %w", err)
	}
	return ids, nil
}

// StaleContentIDs returns the distinct content IDs owning at least one
// record checked before the provided timestamp.
func (s *Store) StaleContentIDs(ctx context.Context, checkedBefore time.Time) ([]string, error) {
	members, err := s.rdb.ZRangeByScore(ctx, s.key("checked"), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(checkedBefore.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("stale content IDs: %w", err)
	}

	var (
		ids  []string
		seen = make(map[string]struct{})
	)
	for _, m := range members {
		cid, _, _ := strings.Cut(m, memberSep)
		if _, ok := seen[cid]; ok {
			continue
		}
		seen[cid] = struct{}{}
		ids = append(ids, cid)
	}
	return ids, nil
}

// Records returns an iterator over all records in insertion order.
func (s *Store) Records(ctx context.Context) (validator.RecordIterator, error) {
	raw, err := recordsScript.Run(ctx, s.rdb, s.keys("")).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}
	return &recordIterator{raw: raw}, nil
}

// Clear removes every record. The per-content sets are only known after
// reading the contents set, so the delete runs in a transaction that is
// retried if a new content item shows up in between.
func (s *Store) Clear(ctx context.Context) error {
	contents := s.key("contents")
	clearFn := func(tx *redis.Tx) error {
		cids, err := tx.SMembers(ctx, contents).Result()
		if err != nil {
			return err
		}

		keys := []string{s.key("records"), s.key("order"), s.key("checked"), contents}
		for _, cid := range cids {
			keys = append(keys, s.contentKeyPrefix()+cid)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxClearAttempts; attempt++ {
		err := s.rdb.Watch(ctx, clearFn, contents)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		return nil
	}
	return fmt.Errorf("clear: %w", redis.TxFailedErr)
}
