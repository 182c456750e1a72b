// Package ratelimit shares the market data provider's call allowance across
// every server instance through Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultTotalBudget    = 5           // calls per window
	DefaultReservedBudget = 3           // reserved for interactive lookups
	DefaultWindowSize     = time.Minute // fixed window aligned to the clock
)

// Redis key prefixes for call tracking.
const (
	KeyPrefixTotal    = "mdbudget:total:"
	KeyPrefixReserved = "mdbudget:reserved:"
	KeyPrefixShared   = "mdbudget:shared:"
)

// Priority selects the pool a call draws from.
type Priority int

const (
	// PriorityInteractive is for lookups a user is waiting on (adding a stock).
	PriorityInteractive Priority = iota
	// PriorityBackground is for bulk work such as seeding default watchlists.
	PriorityBackground
)

// String returns a string representation of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityInteractive:
		return "interactive"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

type priorityKey struct{}

// WithPriority tags ctx with the pool provider calls made under it should use
func WithPriority(ctx context.Context, p Priority) context.Context {
	return context.WithValue(ctx, priorityKey{}, p)
}

// PriorityFromContext returns the priority stored in ctx, defaulting to interactive
func PriorityFromContext(ctx context.Context) Priority {
	if p, ok := ctx.Value(priorityKey{}).(Priority); ok {
		return p
	}
	return PriorityInteractive
}

// CallBudgetConfig holds configuration for the call budget.
type CallBudgetConfig struct {
	// Redis is required for cross-instance coordination.
	Redis redis.Cmdable

	// TotalBudget is the number of provider calls allowed per window.
	TotalBudget int

	// ReservedBudget is the share of TotalBudget only interactive calls may use.
	ReservedBudget int

	// WindowSize is the window duration.
	WindowSize time.Duration
}

// Validate checks if the configuration is valid.
func (c *CallBudgetConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.TotalBudget < 0 {
		return errors.New("total budget cannot be negative")
	}
	if c.ReservedBudget < 0 {
		return errors.New("reserved budget cannot be negative")
	}

	total, reserved := c.budgets()
	if reserved > total {
		return fmt.Errorf("reserved budget (%d) cannot exceed total budget (%d)", reserved, total)
	}
	return nil
}

func (c *CallBudgetConfig) budgets() (total, reserved int) {
	total = c.TotalBudget
	if total == 0 {
		total = DefaultTotalBudget
	}
	reserved = c.ReservedBudget
	if reserved == 0 {
		reserved = DefaultReservedBudget
		if reserved > total {
			reserved = total
		}
	}
	return total, reserved
}

// CallBudget is a fixed-window limiter with a reserved pool for
// interactive calls and a shared pool for background calls.
type CallBudget struct {
	redis          redis.Cmdable
	totalBudget    int
	reservedBudget int
	sharedBudget   int
	windowSize     time.Duration
	keyTTL         time.Duration
	now            func() time.Time
}

// UsageStats contains current consumption for the active window.
type UsageStats struct {
	TotalUsed      int       `json:"totalUsed"`
	ReservedUsed   int       `json:"reservedUsed"`
	SharedUsed     int       `json:"sharedUsed"`
	TotalBudget    int       `json:"totalBudget"`
	ReservedBudget int       `json:"reservedBudget"`
	SharedBudget   int       `json:"sharedBudget"`
	WindowStart    time.Time `json:"windowStart"`
}

// NewCallBudget creates a new budget with the given configuration.
func NewCallBudget(cfg *CallBudgetConfig) (*CallBudget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	total, reserved := cfg.budgets()
	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}

	return &CallBudget{
		redis:          cfg.Redis,
		totalBudget:    total,
		reservedBudget: reserved,
		sharedBudget:   total - reserved,
		windowSize:     windowSize,
		keyTTL:         2 * windowSize,
		now:            time.Now,
	}, nil
}

// consumeScript atomically checks both the total and the pool counter and
// increments them together.
var consumeScript = redis.NewScript(`
	local totalKey = KEYS[1]
	local poolKey = KEYS[2]
	local n = tonumber(ARGV[1])
	local totalBudget = tonumber(ARGV[2])
	local poolBudget = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local totalUsed = tonumber(redis.call('GET', totalKey) or '0')
	local poolUsed = tonumber(redis.call('GET', poolKey) or '0')

	if totalUsed + n > totalBudget or poolUsed + n > poolBudget then
		return {0, totalUsed, poolUsed}
	end

	redis.call('INCRBY', totalKey, n)
	redis.call('EXPIRE', totalKey, ttl)
	redis.call('INCRBY', poolKey, n)
	redis.call('EXPIRE', poolKey, ttl)

	return {1, totalUsed + n, poolUsed + n}
`)

func (b *CallBudget) windowTimestamp() int64 {
	return b.now().Truncate(b.windowSize).UnixMilli()
}

func (b *CallBudget) keys(windowTS int64) (totalKey, reservedKey, sharedKey string) {
	ts := strconv.FormatInt(windowTS, 10)
	return KeyPrefixTotal + ts, KeyPrefixReserved + ts, KeyPrefixShared + ts
}

// TryConsume attempts to take one call from the pool matching priority.
// Interactive calls may fall back to the shared pool once the reserved pool
// is spent. On a Redis error the call is denied.
//
// Returns whether the call may proceed and, if not, how long until the
// next window opens.
func (b *CallBudget) TryConsume(ctx context.Context, priority Priority) (bool, time.Duration) {
	windowTS := b.windowTimestamp()
	totalKey, reservedKey, sharedKey := b.keys(windowTS)

	pools := []struct {
		key    string
		budget int
	}{{sharedKey, b.sharedBudget}}
	if priority == PriorityInteractive {
		pools = append([]struct {
			key    string
			budget int
		}{{reservedKey, b.reservedBudget}}, pools...)
	}

	ttlSeconds := int(b.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	for _, pool := range pools {
		if pool.budget <= 0 {
			continue
		}
		result, err := consumeScript.Run(ctx, b.redis, []string{totalKey, pool.key},
			1, b.totalBudget, pool.budget, ttlSeconds).Int64Slice()
		if err != nil {
			return false, b.waitTime(windowTS)
		}
		if result[0] == 1 {
			return true, 0
		}
	}
	return false, b.waitTime(windowTS)
}

// waitTime returns the time until the next window starts.
func (b *CallBudget) waitTime(windowTS int64) time.Duration {
	windowEnd := time.UnixMilli(windowTS).Add(b.windowSize)
	wait := windowEnd.Sub(b.now())
	if wait < 0 {
		wait = 0
	}
	return wait + time.Millisecond
}

// Usage returns current consumption statistics.
func (b *CallBudget) Usage(ctx context.Context) (*UsageStats, error) {
	windowTS := b.windowTimestamp()
	totalKey, reservedKey, sharedKey := b.keys(windowTS)

	pipe := b.redis.Pipeline()
	totalCmd := pipe.Get(ctx, totalKey)
	reservedCmd := pipe.Get(ctx, reservedKey)
	sharedCmd := pipe.Get(ctx, sharedKey)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read call budget: %w", err)
	}

	return &UsageStats{
		TotalUsed:      parseIntOrZero(totalCmd),
		ReservedUsed:   parseIntOrZero(reservedCmd),
		SharedUsed:     parseIntOrZero(sharedCmd),
		TotalBudget:    b.totalBudget,
		ReservedBudget: b.reservedBudget,
		SharedBudget:   b.sharedBudget,
		WindowStart:    time.UnixMilli(windowTS),
	}, nil
}

// parseIntOrZero parses a Redis string command result as int, returning 0 on error.
func parseIntOrZero(cmd *redis.StringCmd) int {
	val, err := cmd.Int()
	if err != nil {
		return 0
	}
	return val
}
