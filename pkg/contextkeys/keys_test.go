package contextkeys

import (
	"context"
	"testing"
	"time"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/stretchr/testify/assert"
)

func TestRequestAndUserIDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetUserID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithUserID(ctx, "u-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "u-1", GetUserID(ctx))
}

func TestRequestStartTime(t *testing.T) {
	_, ok := GetRequestStartTime(context.Background())
	assert.False(t, ok)

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, ok := GetRequestStartTime(WithRequestStartTime(context.Background(), start))
	assert.True(t, ok)
	assert.Equal(t, start, got)
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	_, ok := GetUserContext(ctx)
	assert.False(t, ok)

	ctx = WithUserContext(ctx, hierarchy.UserContext{UserID: "u-1", Role: hierarchy.RoleGR})
	uctx, ok := GetUserContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, hierarchy.RoleGR, uctx.Role)
}

func TestKeysDoNotCollideWithStrings(t *testing.T) {
	// A plain string key with the same spelling is a different key.
	ctx := context.WithValue(context.Background(), "request_id", "spoofed")
	assert.Empty(t, GetRequestID(ctx))
}
