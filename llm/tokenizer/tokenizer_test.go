package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingTokenizer struct{}

func (failingTokenizer) CountTokens(string) (int, error) { return 0, errors.New("offline") }
func (failingTokenizer) Truncate(string, int) (string, error) { return "", errors.New("offline") }
func (failingTokenizer) Name() string { return "failing" }

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer()

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, _ = e.CountTokens("abcdefgh")
	assert.Equal(t, 2, n)

	n, _ = e.CountTokens("a")
	assert.Equal(t, 1, n)

	n, _ = e.CountTokens("你好世")
	assert.Equal(t, 2, n)
}

func TestEstimator_Truncate(t *testing.T) {
	e := NewEstimatorTokenizer()

	out, err := e.Truncate(strings.Repeat("a", 40), 5)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 20), out)

	out, _ = e.Truncate("short", 100)
	assert.Equal(t, "short", out)

	out, _ = e.Truncate("unbounded", 0)
	assert.Equal(t, "unbounded", out)
}

func TestFallbackTokenizer_UsesEstimatorOnError(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := &fallbackTokenizer{primary: failingTokenizer{}, fallback: NewEstimatorTokenizer(), logger: zap.New(core)}

	n, err := f.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	out, err := f.Truncate("abcdefgh", 1)
	require.NoError(t, err)
	assert.Equal(t, "abcd", out)
	assert.Equal(t, 1, logs.Len(), "fallback is reported once")
	assert.Equal(t, "failing|estimator", f.Name())
}

func TestFitBudget(t *testing.T) {
	e := NewEstimatorTokenizer()
	parts := []string{strings.Repeat("a", 40), strings.Repeat("b", 40), strings.Repeat("c", 40)}

	assert.Equal(t, 3, FitBudget(e, parts, 0))
	assert.Equal(t, 2, FitBudget(e, parts, 25))
	assert.Equal(t, 0, FitBudget(e, parts, 5))
	assert.Equal(t, 3, FitBudget(e, parts, 30))
}

func TestNewTiktokenTokenizer_EncodingSelection(t *testing.T) {
	assert.Equal(t, "o200k_base", NewTiktokenTokenizer("gpt-4o-mini").encoding)
	assert.Equal(t, "cl100k_base", NewTiktokenTokenizer("gpt-4-turbo").encoding)
	assert.Equal(t, "cl100k_base", NewTiktokenTokenizer("llama-3").encoding)
}
