package correction

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "How do I enable GATT notifications?", want: "enable gatt notifications"},
		{in: "  enable   GATT\tnotifications ", want: "enable gatt notifications"},
		{in: "What's the LE-Secure pairing flow?!", want: "s le secure pairing flow"},
		{in: "Write 0x0001 to the CCCD", want: "write 0x0001 cccd"},
		{in: "how to do it", want: "how to do it"},
		{in: "???", want: ""},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuery(tt.in))
		})
	}
}

func TestID(t *testing.T) {
	id := ID("enable gatt notifications")
	assert.Len(t, id, 32)
	assert.Equal(t, id, ID("enable gatt notifications"))
	assert.NotEqual(t, id, ID("enable gatt indications"))
	assert.Equal(t, "correction:"+id, Key(id))
}

func TestVectorID(t *testing.T) {
	assert.Equal(t, "abc", vectorID("abc", 0))
	assert.Equal(t, "abc_v1", vectorID("abc", 1))
	assert.Equal(t, "abc_v12", vectorID("abc", 12))
}

func TestMergeVariants(t *testing.T) {
	got := mergeVariants("How to pair?",
		[]string{"pairing steps", "Pairing steps!"},
		[]string{"how to pair", "bonding procedure", " ", "pairing steps"})
	assert.Equal(t, []string{"pairing steps", "bonding procedure"}, got)
}

func TestProperty_NormalizeQuery_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500

	properties := gopter.NewProperties(parameters)
	properties.Property("normalizing twice equals normalizing once", prop.ForAll(
		func(s string) bool {
			once := NormalizeQuery(s)
			return NormalizeQuery(once) == once
		},
		gen.AnyString(),
	))
	properties.Property("ids of equivalent questions match", prop.ForAll(
		func(words []string) bool {
			a := ""
			b := ""
			for _, w := range words {
				a += w + " "
				b += "  " + w + "?"
			}
			return ID(NormalizeQuery(a)) == ID(NormalizeQuery(b))
		},
		gen.SliceOf(gen.AlphaString()),
	))
	properties.TestingRun(t)
}

func TestProperty_NormalizeQuery_NoPunctuation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.String().Draw(rt, "query")
		n := NormalizeQuery(s)
		assert.NotContains(t, n, "  ")
		assert.Equal(t, n, NormalizeQuery(n))
		for _, r := range n {
			if r == ' ' {
				continue
			}
			assert.Falsef(t, r == '?' || r == '!' || r == ',' || r == '.', "punctuation %q in %q", r, n)
		}
	})
}
