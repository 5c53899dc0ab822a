package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessorsOnEmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, UserID(ctx))
	assert.Empty(t, SessionID(ctx))
	assert.Empty(t, ClientIP(ctx))
	assert.Empty(t, UserAgent(ctx))
	assert.Empty(t, RequestID(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessorsRoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ctx := WithUserID(context.Background(), "user-1")
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithClientMetadata(ctx, "198.51.100.7", "curl/8.5")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTime(ctx, at)

	assert.Equal(t, "user-1", UserID(ctx))
	assert.Equal(t, "sess-1", SessionID(ctx))
	assert.Equal(t, "198.51.100.7", ClientIP(ctx))
	assert.Equal(t, "curl/8.5", UserAgent(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, at, Now(ctx))
}
