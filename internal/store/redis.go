package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/capitalize-ai/ragchat/internal/model"
)

const redisKeyPrefix = "ragchat:chats:"

// RedisStore keeps each record as a JSON string and uses WATCH/MULTI for
// conditional writes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects using a redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(userID string) string {
	return redisKeyPrefix + userID
}

// Get loads the subject's record.
func (s *RedisStore) Get(ctx context.Context, userID string) (*model.ChatRecord, error) {
	raw, err := s.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return emptyRecord(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat record: %w", err)
	}
	return decodeRecord(userID, raw)
}

// Put writes the record if nobody changed it since it was read.
func (s *RedisStore) Put(ctx context.Context, rec *model.ChatRecord) error {
	key := redisKey(rec.UserID)
	next := *rec
	next.Version = rec.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode chat record: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			stored, err := decodeRecord(rec.UserID, raw)
			if err != nil {
				return err
			}
			current = stored.Version
		}
		if current != rec.Version {
			return ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrVersionConflict):
		return ErrVersionConflict
	case err != nil:
		return fmt.Errorf("put chat record: %w", err)
	}
	rec.Version = next.Version
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRecord(userID string, raw []byte) (*model.ChatRecord, error) {
	var rec model.ChatRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode chat record: %w", err)
	}
	rec.UserID = userID
	if rec.Chats == nil {
		rec.Chats = []model.Conversation{}
	}
	return &rec, nil
}
