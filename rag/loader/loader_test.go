package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/groundrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ============================================================
// LoaderRegistry Tests
// ============================================================

func TestNewLoaderRegistry_HasBuiltinLoaders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{".json", ".jsonl"}, NewLoaderRegistry().SupportedTypes())
}

func TestLoaderRegistry_Register_CustomLoader(t *testing.T) {
	t.Parallel()

	r := NewLoaderRegistry()
	r.Register(".NDJSON", NewJSONLoader(JSONLoaderConfig{}))

	assert.Contains(t, r.SupportedTypes(), ".ndjson")
}

func TestLoaderRegistry_Load_NoExtension(t *testing.T) {
	t.Parallel()

	_, err := NewLoaderRegistry().Load(t.Context(), "noextension")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no extension")
}

func TestLoaderRegistry_Load_UnknownExtension(t *testing.T) {
	t.Parallel()

	_, err := NewLoaderRegistry().Load(t.Context(), "file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no loader registered")
}

func TestLoaderRegistry_Load_CaseInsensitive(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "CHUNKS.JSONL", `{"id":"c1","content":"ATT_MTU is 23 bytes"}`)
	docs, err := NewLoaderRegistry().Load(t.Context(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c1", docs[0].ID)
}

// ============================================================
// JSONLoader Tests
// ============================================================

func TestJSONLoader_Load_JSONL_Metadata(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "core.jsonl",
		`{"id":"att-1","content":"The default ATT_MTU is 23 bytes.","doc_id":"core-v5.4","title":"Core Spec","chunk_index":3,"metadata":{"protocol_layer":"ATT","page":112}}
`+"\n"+
			`{"text":"L2CAP signaling channel uses CID 0x0005.","metadata":{"title":"Core Spec","section":"3.4"}}`)

	docs, err := NewJSONLoader(JSONLoaderConfig{}).Load(t.Context(), path)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	first := docs[0]
	assert.Equal(t, "att-1", first.ID)
	assert.Equal(t, "core-v5.4", first.Metadata[rag.MetaDocID])
	assert.Equal(t, "ATT", first.Metadata[rag.MetaProtocolLayer])
	assert.Equal(t, "core.jsonl", first.Metadata[rag.MetaSource])

	chunk := rag.ChunkFromDocument(first, 0.5)
	assert.Equal(t, 3, chunk.Metadata.ChunkIndex)
	assert.Equal(t, "ATT", chunk.Metadata.Topic)
	assert.Equal(t, float64(112), chunk.Metadata.Extra["page"])

	second := docs[1]
	assert.Equal(t, "core.jsonl#1", second.ID)
	assert.Equal(t, "L2CAP signaling channel uses CID 0x0005.", second.Content)
	assert.Equal(t, "3.4", second.Metadata[rag.MetaSection])
}

func TestJSONLoader_Load_TopLevelOverridesNested(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "c.json", `{"content":"x","title":"top","metadata":{"title":"nested"}}`)
	docs, err := NewJSONLoader(JSONLoaderConfig{}).Load(t.Context(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "top", docs[0].Metadata[rag.MetaTitle])
}

func TestJSONLoader_Load_Array_CustomFields(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "data.json", `[{"body":{"text":"hello"},"key":"1"},{"body":{"text":"world"},"key":"2"}]`)
	docs, err := NewJSONLoader(JSONLoaderConfig{ContentField: "body.text", IDField: "key"}).Load(t.Context(), path)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "hello", docs[0].Content)
	assert.Equal(t, "1", docs[0].ID)
	assert.Equal(t, "world", docs[1].Content)
	assert.Equal(t, "2", docs[1].ID)
}

func TestJSONLoader_Load_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"invalid json", "bad.json", "{invalid", "invalid JSON"},
		{"scalar root", "num.json", "42", "object or an array"},
		{"empty content", "empty.json", `[{"id":"a","content":"  "}]`, "empty content"},
		{"invalid jsonl line", "bad.jsonl", "{\"content\":\"ok\"}\n{oops", "line 2"},
		{"jsonl non-object", "arr.jsonl", `["content"]`, "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := NewJSONLoader(JSONLoaderConfig{}).Load(t.Context(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJSONLoader_Load_EmptyFile(t *testing.T) {
	t.Parallel()

	docs, err := NewJSONLoader(JSONLoaderConfig{}).Load(t.Context(), writeFile(t, "empty.json", " \n"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestJSONLoader_Load_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := NewJSONLoader(JSONLoaderConfig{}).Load(t.Context(), filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}
