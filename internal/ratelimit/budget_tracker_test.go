package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBudget(t *testing.T, total, reserved int) (*CallBudget, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	budget, err := NewCallBudget(&CallBudgetConfig{
		Redis:          client,
		TotalBudget:    total,
		ReservedBudget: reserved,
		WindowSize:     time.Minute,
	})
	require.NoError(t, err)

	fixed := time.Date(2026, 3, 2, 14, 30, 10, 0, time.UTC)
	budget.now = func() time.Time { return fixed }
	return budget, mr
}

func TestNewCallBudget_Validation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer func() { _ = client.Close() }()

	tests := []struct {
		name    string
		cfg     *CallBudgetConfig
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "configuration is required"},
		{name: "nil redis", cfg: &CallBudgetConfig{}, wantErr: "redis client is required"},
		{name: "negative total", cfg: &CallBudgetConfig{Redis: client, TotalBudget: -1}, wantErr: "cannot be negative"},
		{name: "reserved exceeds total", cfg: &CallBudgetConfig{Redis: client, TotalBudget: 2, ReservedBudget: 3}, wantErr: "cannot exceed"},
		{name: "defaults", cfg: &CallBudgetConfig{Redis: client}},
		{name: "small total clamps default reserve", cfg: &CallBudgetConfig{Redis: client, TotalBudget: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCallBudget(tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCallBudget_BackgroundCannotUseReserve(t *testing.T) {
	budget, _ := newTestBudget(t, 5, 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _ := budget.TryConsume(ctx, PriorityBackground)
		assert.True(t, ok, "background call %d", i)
	}
	ok, wait := budget.TryConsume(ctx, PriorityBackground)
	assert.False(t, ok)
	assert.Equal(t, 50*time.Second+time.Millisecond, wait)

	for i := 0; i < 3; i++ {
		ok, _ := budget.TryConsume(ctx, PriorityInteractive)
		assert.True(t, ok, "interactive call %d", i)
	}
	ok, _ = budget.TryConsume(ctx, PriorityInteractive)
	assert.False(t, ok)

	usage, err := budget.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, usage.TotalUsed)
	assert.Equal(t, 3, usage.ReservedUsed)
	assert.Equal(t, 2, usage.SharedUsed)
}

func TestCallBudget_InteractiveSpillsIntoShared(t *testing.T) {
	budget, _ := newTestBudget(t, 4, 1)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		ok, _ := budget.TryConsume(ctx, PriorityInteractive)
		assert.True(t, ok, "interactive call %d", i)
	}
	ok, _ := budget.TryConsume(ctx, PriorityInteractive)
	assert.False(t, ok)
}

func TestCallBudget_NewWindowResets(t *testing.T) {
	budget, _ := newTestBudget(t, 1, 1)
	ctx := context.Background()

	ok, _ := budget.TryConsume(ctx, PriorityInteractive)
	require.True(t, ok)
	ok, _ = budget.TryConsume(ctx, PriorityInteractive)
	require.False(t, ok)

	next := budget.now().Add(time.Minute)
	budget.now = func() time.Time { return next }
	ok, _ = budget.TryConsume(ctx, PriorityInteractive)
	assert.True(t, ok)
}

func TestCallBudget_RedisDownDenies(t *testing.T) {
	budget, mr := newTestBudget(t, 5, 3)
	mr.Close()

	ok, wait := budget.TryConsume(context.Background(), PriorityInteractive)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
}

func TestPriorityContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, PriorityInteractive, PriorityFromContext(ctx))
	assert.Equal(t, PriorityBackground, PriorityFromContext(WithPriority(ctx, PriorityBackground)))
	assert.Equal(t, "background", PriorityBackground.String())
}
