// Package contextkeys defines every request-scoped context value used by
// orgscope. Keys are unexported, so values can only be stored and read
// through the typed helpers below.
//
//	ctx = contextkeys.WithUserContext(ctx, uctx)
//	uctx, ok := contextkeys.GetUserContext(ctx)
//
// Producers:
//
//	request id, start time   httputil.RequestIDMiddleware
//	user id, user context    api identity middleware (X-User-ID header)
package contextkeys

import (
	"context"
	"time"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

type key int

const (
	requestIDKey key = iota
	requestStartKey
	userIDKey
	userContextKey
)

// WithRequestID stores the request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request id, or "" outside a request
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRequestStartTime stores the time the request was received
func WithRequestStartTime(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, requestStartKey, start)
}

// GetRequestStartTime returns the time the request was received
func GetRequestStartTime(ctx context.Context) (time.Time, bool) {
	start, ok := ctx.Value(requestStartKey).(time.Time)
	return start, ok
}

// WithUserID stores the calling user's id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the calling user's id, or "" when unauthenticated
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithUserContext stores the caller's resolved organizational context
func WithUserContext(ctx context.Context, uctx hierarchy.UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, uctx)
}

// GetUserContext returns the caller's organizational context
func GetUserContext(ctx context.Context) (hierarchy.UserContext, bool) {
	uctx, ok := ctx.Value(userContextKey).(hierarchy.UserContext)
	return uctx, ok
}
