package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"studyrag/internal/domain"
)

// SessionStore keeps each session as a Redis list of JSON messages, plus a
// creation timestamp and membership in a set of session ids.
type SessionStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration
}

// New connects and pings the server.
func New(opts Options) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	s := NewWithClient(client, opts.Prefix, opts.Timeout)

	ctx, cancel := s.ctx()
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return s, nil
}

func NewWithClient(client *redis.Client, prefix string, timeout time.Duration) *SessionStore {
	if prefix == "" {
		prefix = "studyrag"
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &SessionStore{client: client, prefix: prefix, timeout: timeout, now: time.Now}
}

func (s *SessionStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *SessionStore) idsKey() string                { return s.prefix + ":sessions" }
func (s *SessionStore) messagesKey(id string) string { return s.prefix + ":session:" + id + ":messages" }
func (s *SessionStore) createdKey(id string) string  { return s.prefix + ":session:" + id + ":created" }

// AppendTurn pushes all turns with one RPUSH inside MULTI/EXEC, so they land
// contiguously and atomically.
func (s *SessionStore) AppendTurn(id string, turns ...domain.Message) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	now := s.now()
	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		if !t.Role.IsValid() {
			return 0, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, t.Role)
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		data, err := json.Marshal(t)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, data)
	}

	ctx, cancel := s.ctx()
	defer cancel()

	var push *redis.IntCmd
	var llen *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, s.createdKey(id), now.UTC().Format(time.RFC3339Nano), 0)
		pipe.SAdd(ctx, s.idsKey(), id)
		if len(values) > 0 {
			push = pipe.RPush(ctx, s.messagesKey(id), values...)
		} else {
			llen = pipe.LLen(ctx, s.messagesKey(id))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append to session %q: %w", id, err)
	}
	if push != nil {
		return int(push.Val()), nil
	}
	return int(llen.Val()), nil
}

func (s *SessionStore) GetHistory(id string) ([]domain.Message, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	raw, err := s.client.LRange(ctx, s.messagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session %q: %w", id, err)
	}
	history := make([]domain.Message, 0, len(raw))
	for _, r := range raw {
		var m domain.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		history = append(history, m)
	}
	return history, nil
}

func (s *SessionStore) ListSessions() ([]domain.SessionSummary, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sort.Strings(ids)

	lens := make([]*redis.IntCmd, len(ids))
	created := make([]*redis.StringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			lens[i] = pipe.LLen(ctx, s.messagesKey(id))
			created[i] = pipe.Get(ctx, s.createdKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]domain.SessionSummary, 0, len(ids))
	for i, id := range ids {
		summary := domain.SessionSummary{ID: id, MessageCount: int(lens[i].Val())}
		if ts, err := time.Parse(time.RFC3339Nano, created[i].Val()); err == nil {
			summary.CreatedAt = ts
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *SessionStore) DeleteSession(id string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.messagesKey(id), s.createdKey(id))
		pipe.SRem(ctx, s.idsKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %q: %w", id, err)
	}
	return nil
}

func (s *SessionStore) Close() error {
	return s.client.Close()
}
