// Package store keeps command-loop sessions in Redis so a student can resume
// a line of study later.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-coach/internal/board"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	DefaultTTL = 24 * time.Hour
	keyPrefix  = "coach:session:"
	indexKey   = "coach:sessions"
)

// Record is the persisted form of a session: the loaded position and the
// coordinate moves played from it.
type Record struct {
	ID       string    `json:"id"`
	StartFEN string    `json:"start_fen"`
	Moves    []string  `json:"moves"`
	Labels   []string  `json:"labels"`
	SavedAt  time.Time `json:"saved_at"`
}

type SessionStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// Open connects to redisURL (redis:// or rediss://) and pings it.
func Open(ctx context.Context, redisURL string, ttl time.Duration, logger *zap.Logger) (*SessionStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for session store")
	}
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, ttl, logger), nil
}

func New(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{rdb: rdb, ttl: ttl, logger: logger}
}

func (s *SessionStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Save writes sess under id, or under a fresh id when id is empty, and
// returns the id used.
func (s *SessionStore) Save(ctx context.Context, id string, sess *board.Session) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	rec := Record{
		ID:       id,
		StartFEN: sess.StartFEN(),
		Moves:    sess.MovesUCI(),
		Labels:   sess.History(),
		SavedAt:  time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(id), raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, indexKey, redis.Z{Score: float64(rec.SavedAt.Unix()), Member: id}).Err(); err != nil {
		return "", fmt.Errorf("index session: %w", err)
	}
	_ = s.rdb.Expire(ctx, indexKey, s.ttl).Err()
	s.logger.Info("session_save", zap.String("id", id), zap.Int("plies", len(rec.Moves)))
	return id, nil
}

// Load replays the stored moves from the stored start position.
func (s *SessionStore) Load(ctx context.Context, id string) (*board.Session, *Record, error) {
	rec, err := s.get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, nil, err
	}
	sess, err := board.Restore(rec.StartFEN, rec.Moves)
	if err != nil {
		return nil, nil, fmt.Errorf("restore session %s: %w", rec.ID, err)
	}
	s.logger.Info("session_load", zap.String("id", rec.ID), zap.Int("plies", len(rec.Moves)))
	return sess, rec, nil
}

// Recent returns up to limit stored sessions, newest first. Entries whose
// payload already expired are skipped.
func (s *SessionStore) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := s.rdb.ZRevRange(ctx, indexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			_ = s.rdb.ZRem(ctx, indexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return s.rdb.ZRem(ctx, indexKey, id).Err()
}

func (s *SessionStore) get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	raw, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

func sessionKey(id string) string { return keyPrefix + id }
