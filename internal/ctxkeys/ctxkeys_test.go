package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	tests := []struct {
		name string
		set  func(context.Context, string) context.Context
		get  func(context.Context) (string, bool)
	}{
		{"request id", WithRequestID, RequestID},
		{"conversation id", WithConversationID, ConversationID},
		{"client", WithClient, Client},
		{"reviewer", WithReviewer, Reviewer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tt.get(context.Background())
			assert.False(t, ok)

			_, ok = tt.get(tt.set(context.Background(), ""))
			assert.False(t, ok, "empty value is treated as absent")

			v, ok := tt.get(tt.set(context.Background(), "abc"))
			assert.True(t, ok)
			assert.Equal(t, "abc", v)
		})
	}
}

func TestContextKeys_Independent(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithConversationID(ctx, "conv-1")

	rid, _ := RequestID(ctx)
	cid, _ := ConversationID(ctx)
	assert.Equal(t, "req-1", rid)
	assert.Equal(t, "conv-1", cid)
	_, ok := Client(ctx)
	assert.False(t, ok)
}
