package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound signals a reset token that is unknown, expired, or
// already claimed.
var ErrTokenNotFound = errors.New("identity: reset token not found")

const resetTokenPrefix = "identity:reset:"

func newResetToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// RedisTokenStore keeps reset tokens in redis with a TTL, so tokens expire
// without a sweeper.
type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) Save(ctx context.Context, token, accountID string, ttl time.Duration) error {
	return s.client.Set(ctx, resetTokenPrefix+token, accountID, ttl).Err()
}

func (s *RedisTokenStore) Claim(ctx context.Context, token string) (string, error) {
	accountID, err := s.client.GetDel(ctx, resetTokenPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrTokenNotFound
		}
		return "", err
	}
	return accountID, nil
}

// MemoryTokenStore is an in-process fallback used when redis is not
// configured, and in tests.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
}

type memoryToken struct {
	accountID string
	expiresAt time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]memoryToken)}
}

func (s *MemoryTokenStore) Save(_ context.Context, token, accountID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = memoryToken{accountID: accountID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) Claim(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok {
		return "", ErrTokenNotFound
	}
	delete(s.tokens, token)
	if time.Now().After(entry.expiresAt) {
		return "", ErrTokenNotFound
	}
	return entry.accountID, nil
}
