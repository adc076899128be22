package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Limiter enforces a campaign's daily call limit with Redis counters so the
// budget holds across engine restarts and multiple dialer instances. It also
// serves the shared do-not-call registry lookup.
type Limiter struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

const dncSetKey = "dialer:dnc"

// NewLimiter constructs a budget limiter.
func NewLimiter(client *redis.Client, keyPrefix string) *Limiter {
	if keyPrefix == "" {
		keyPrefix = "dialer:campaign"
	}
	return &Limiter{client: client, keyPrefix: keyPrefix, now: time.Now}
}

var acquireScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', key) or '0')
if current < limit then
  current = redis.call('INCR', key)
  if ttl > 0 then
    redis.call('PEXPIRE', key, ttl)
  end
  return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
local key = KEYS[1]
local current = tonumber(redis.call('GET', key) or '0')
if current <= 0 then
  redis.call('DEL', key)
  return 0
end
return redis.call('DECR', key)
`)

// Acquire reserves one dial against today's budget. limit <= 0 means the
// campaign has no daily limit.
func (l *Limiter) Acquire(ctx context.Context, campaignID uuid.UUID, limit int) (bool, error) {
	if limit <= 0 || campaignID == uuid.Nil {
		return true, nil
	}

	key := l.key(campaignID)
	ttl := l.untilMidnight().Milliseconds()
	res, err := acquireScript.Run(ctx, l.client, []string{key}, limit, ttl).Int()
	if err != nil {
		return false, fmt.Errorf("budget acquire: %w", err)
	}
	return res == 1, nil
}

// Release returns one dial to the budget, used when placement failed before
// the call ever left the building.
func (l *Limiter) Release(ctx context.Context, campaignID uuid.UUID) error {
	if campaignID == uuid.Nil {
		return nil
	}
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key(campaignID)}).Int(); err != nil {
		return fmt.Errorf("budget release: %w", err)
	}
	return nil
}

// Used reports today's consumed budget.
func (l *Limiter) Used(ctx context.Context, campaignID uuid.UUID) (int, error) {
	n, err := l.client.Get(ctx, l.key(campaignID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget used: %w", err)
	}
	return n, nil
}

// IsListed checks the shared DNC set; satisfies compliance.DNCLookup.
func (l *Limiter) IsListed(ctx context.Context, phone string) (bool, error) {
	listed, err := l.client.SIsMember(ctx, dncSetKey, phone).Result()
	if err != nil {
		return false, fmt.Errorf("dnc lookup: %w", err)
	}
	return listed, nil
}

// AddToDNC registers a phone number in the shared DNC set.
func (l *Limiter) AddToDNC(ctx context.Context, phone string) error {
	if err := l.client.SAdd(ctx, dncSetKey, phone).Err(); err != nil {
		return fmt.Errorf("dnc add: %w", err)
	}
	return nil
}

func (l *Limiter) key(campaignID uuid.UUID) string {
	day := l.now().UTC().Format("2006-01-02")
	return fmt.Sprintf("%s:%s:budget:%s", l.keyPrefix, campaignID.String(), day)
}

func (l *Limiter) untilMidnight() time.Duration {
	now := l.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}
