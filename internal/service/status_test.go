package service

import (
	"context"
	"testing"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapExchangeStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want model.OrderStatus
		ok   bool
	}{
		{"ACTIVE", model.StatusActive, true},
		{"active", model.StatusActive, true},
		{"PARTIALLY FILLED @ 0.0002(150.0)", model.StatusPartiallyFilled, true},
		{"PARTIALLY_FILLED", model.StatusPartiallyFilled, true},
		{"EXECUTED @ 0.00021(200.0)", model.StatusExecuted, true},
		{"CANCELED", model.StatusCancelled, true},
		{"CANCELLED", model.StatusCancelled, true},
		{"CANCELED was: PARTIALLY FILLED @ 0.0002(50.0)", model.StatusCancelled, true},
		{"EXPIRED", model.StatusExpired, true},
		{"PENDING", model.StatusPending, true},
		{"RSN_DUST", model.StatusError, false},
		{"", model.StatusError, false},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := MapExchangeStatus(tc.raw)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestLocalGuard(t *testing.T) {
	g := NewLocalGuard()

	release, ok, err := g.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = g.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release() // second call is a no-op

	again, ok, err := g.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}
