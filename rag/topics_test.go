package rag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicClassifier_Classify(t *testing.T) {
	tc := NewTopicClassifier(nil)

	tests := []struct {
		name  string
		chunk RetrievedChunk
		want  string
	}{
		{
			name:  "metadata topic wins",
			chunk: RetrievedChunk{Content: "pairing and bonding", Metadata: ChunkMetadata{Topic: "GATT"}},
			want:  "gatt",
		},
		{
			name:  "keyword vocabulary",
			chunk: RetrievedChunk{Content: "SMP pairing stores the LTK after bonding"},
			want:  "security",
		},
		{
			name:  "most keyword hits",
			chunk: RetrievedChunk{Content: "The L2CAP MTU and MPS are negotiated; a GATT client reads the MTU."},
			want:  "l2cap",
		},
		{
			name:  "title fallback",
			chunk: RetrievedChunk{Content: "nothing relevant here", Metadata: ChunkMetadata{Title: "Errata 1234"}},
			want:  "errata 1234",
		},
		{
			name:  "source fallback",
			chunk: RetrievedChunk{Content: "nothing relevant here", Metadata: ChunkMetadata{Source: "Notes.md"}},
			want:  "notes.md",
		},
		{
			name:  "unknown",
			chunk: RetrievedChunk{Content: "nothing relevant here"},
			want:  UnknownTopic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tc.Classify(tt.chunk))
		})
	}
}

func TestTopicClassifier_CustomVocabulary(t *testing.T) {
	tc := NewTopicClassifier([]TopicKeywords{{Topic: "mesh", Keywords: []string{"Provisioning", "relay"}}})
	assert.Equal(t, "mesh", tc.Classify(RetrievedChunk{Content: "provisioning a relay node"}))
	assert.Equal(t, UnknownTopic, tc.Classify(RetrievedChunk{Content: "GATT notifications"}))
}

func TestTopicClassifier_ClusterKeepsOrder(t *testing.T) {
	tc := NewTopicClassifier(nil)
	chunks := []RetrievedChunk{
		{ID: "1", Metadata: ChunkMetadata{Topic: "gatt"}},
		{ID: "2", Metadata: ChunkMetadata{Topic: "security"}},
		{ID: "3", Metadata: ChunkMetadata{Topic: "gatt"}},
	}
	clusters := tc.Cluster(chunks)
	require.Len(t, clusters, 2)
	assert.Equal(t, "gatt", clusters[0].Topic)
	assert.Equal(t, []string{"1", "3"}, chunkIDs(clusters[0].Chunks))
	assert.Equal(t, "security", clusters[1].Topic)
}

func TestLinkNotes(t *testing.T) {
	clusters := []TopicCluster{
		{Topic: "gatt", Chunks: []RetrievedChunk{
			{ID: "1", Content: "The CCCD enables GATT notifications. CCCD again."},
			{ID: "2", Content: "Write the CCCD before notifications arrive over ATT."},
			{ID: "3", Content: "ATT carries GATT traffic."},
		}},
		{Topic: "phy", Chunks: []RetrievedChunk{{ID: "4", Content: "Coded PHY range"}}},
		{Topic: "hci", Chunks: []RetrievedChunk{{ID: "5", Content: "an HCI command"}, {ID: "6", Content: "an event"}}},
	}

	notes := LinkNotes(clusters)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], `"gatt"`)
	assert.Contains(t, notes[0], "ATT, CCCD, GATT")
}

func TestLinkNotes_CapsSharedTerms(t *testing.T) {
	content := "Alpha Bravo Charlie Delta Echo Foxtrot Golf"
	notes := LinkNotes([]TopicCluster{{Topic: "x", Chunks: []RetrievedChunk{{Content: content}, {Content: content}}}})
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "Alpha, Bravo, Charlie, Delta, Echo")
	assert.NotContains(t, notes[0], "Foxtrot")
}

func TestAllocate_RoundRobinThenBackfill(t *testing.T) {
	var fused []RetrievedChunk
	for i := 0; i < 6; i++ {
		fused = append(fused, RetrievedChunk{ID: fmt.Sprintf("g%d", i), Metadata: ChunkMetadata{Topic: "gatt"}})
	}
	fused = append(fused, RetrievedChunk{ID: "s0", Metadata: ChunkMetadata{Topic: "security"}})

	clusters := NewTopicClassifier(nil).Cluster(fused)
	got := Allocate(fused, clusters, 4)

	// floor(4/2)=2 轮：g0 s0 g1，然后按融合顺序补齐 g2
	assert.Equal(t, []string{"g0", "s0", "g1", "g2"}, chunkIDs(got))
}

func TestAllocate_EdgeCases(t *testing.T) {
	assert.Nil(t, Allocate(nil, nil, 20))
	assert.Nil(t, Allocate(chunksOf("a"), nil, 0))

	got := Allocate(chunksOf("a", "b", "c"), nil, 2)
	assert.Equal(t, []string{"a", "b"}, chunkIDs(got))

	// 簇数多于名额时每簇 0 个，全部由融合顺序补齐
	fused := []RetrievedChunk{
		{ID: "a", Metadata: ChunkMetadata{Topic: "t1"}},
		{ID: "b", Metadata: ChunkMetadata{Topic: "t2"}},
		{ID: "c", Metadata: ChunkMetadata{Topic: "t3"}},
	}
	got = Allocate(fused, NewTopicClassifier(nil).Cluster(fused), 2)
	assert.Equal(t, []string{"a", "b"}, chunkIDs(got))
	assert.Equal(t, "t1", got[0].Metadata.Topic)
}

func TestKnowledgeGaps(t *testing.T) {
	assert.Len(t, KnowledgeGaps("q", 0, nil), 1)
	assert.Contains(t, KnowledgeGaps("how to pair", 0, nil)[0], "how to pair")

	single := []TopicCluster{{Topic: "gatt"}}
	gaps := KnowledgeGaps("q", 3, single)
	require.Len(t, gaps, 1)
	assert.Contains(t, gaps[0], "gatt")

	assert.Empty(t, KnowledgeGaps("q", 3, []TopicCluster{{Topic: "gatt"}, {Topic: "security"}}))
}
