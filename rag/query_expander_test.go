package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/groundrag/llm"
	"github.com/BaSui01/groundrag/testutil/mocks"
)

func TestQueryExpander_Expand(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(`Here are alternatives:
1. How do I subscribe to GATT notifications?
2) "CCCD write for notifications"
- enable notifications gatt
- How do I subscribe to GATT notifications?
* ATT Handle Value Notification setup`)

	e := NewQueryExpander(provider, DefaultQueryExpanderConfig(), zap.NewNop())
	variants := e.Expand(context.Background(), "Enable GATT notifications")

	assert.Equal(t, []string{
		"How do I subscribe to GATT notifications?",
		"CCCD write for notifications",
		"enable notifications gatt",
	}, variants)

	call := provider.GetLastCall()
	require.NotNil(t, call)
	require.Len(t, call.Request.Messages, 1)
	assert.Equal(t, llm.RoleUser, call.Request.Messages[0].Role)
	assert.Contains(t, call.Request.Messages[0].Content, "Enable GATT notifications")
}

func TestQueryExpander_FailureYieldsNoVariants(t *testing.T) {
	e := NewQueryExpander(mocks.NewErrorProvider(errors.New("upstream down")), DefaultQueryExpanderConfig(), nil)
	assert.Empty(t, e.Expand(context.Background(), "pairing"))

	e = NewQueryExpander(mocks.NewSuccessProvider("   "), DefaultQueryExpanderConfig(), nil)
	assert.Empty(t, e.Expand(context.Background(), "pairing"))
}

func TestQueryExpander_NilSafe(t *testing.T) {
	var e *QueryExpander
	assert.Nil(t, e.Expand(context.Background(), "q"))

	e = NewQueryExpander(nil, QueryExpanderConfig{}, nil)
	assert.Nil(t, e.Expand(context.Background(), "q"))

	e = NewQueryExpander(mocks.NewSuccessProvider("x"), QueryExpanderConfig{}, nil)
	assert.Nil(t, e.Expand(context.Background(), "   "))
}

func TestParseVariants(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		original string
		max      int
		want     []string
	}{
		{
			name:     "drops original case-insensitively",
			text:     "what is an ltk\nLong term key usage",
			original: "What is an LTK",
			max:      3,
			want:     []string{"Long term key usage"},
		},
		{
			name:     "respects max",
			text:     "a1\nb1\nc1\nd1",
			original: "q",
			max:      2,
			want:     []string{"a1", "b1"},
		},
		{
			name:     "strips markers and quotes",
			text:     "(1) 'first'\n•  second",
			original: "q",
			max:      3,
			want:     []string{"first", "second"},
		},
		{
			name:     "skips headers and blanks",
			text:     "Queries:\n\n\nonly one",
			original: "q",
			max:      3,
			want:     []string{"only one"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseVariants(tt.text, tt.original, tt.max))
		})
	}
}
