package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

// SessionStore keeps chat sessions between updates.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, userID int64, sess *Session) error
}

// ---------- Session store (in-memory, потокобезопасно) ----------

type Store struct {
	mu sync.RWMutex
	m  map[int64]*Session
}

func NewStore() *Store {
	return &Store{m: make(map[int64]*Session)}
}

func (s *Store) Get(_ context.Context, userID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.m[userID]; ok {
		return sess, nil
	}
	se := NewSession()
	s.m[userID] = se
	return se, nil
}

func (s *Store) Save(_ context.Context, userID int64, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = sess
	return nil
}

// ---------- Session store (Redis) ----------

const sessionTTL = 24 * time.Hour

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: sessionTTL}
}

func sessionKey(userID int64) string {
	return "salon:session:" + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (*Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSession(), nil
	}
	if err != nil {
		return nil, errs.New("failed to load session").Arg("user_id", userID).Wrap(err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// Битая сессия: начинаем заново
		return NewSession(), nil
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, userID int64, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errs.New("failed to encode session").Wrap(err)
	}
	if err := s.rdb.Set(ctx, sessionKey(userID), data, s.ttl).Err(); err != nil {
		return errs.New("failed to save session").Arg("user_id", userID).Wrap(err)
	}
	return nil
}

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
