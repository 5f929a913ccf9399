package rag

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// UnknownTopic 无法归类时使用的主题
const UnknownTopic = "unknown"

// TopicKeywords 主题词表中的一项
type TopicKeywords struct {
	Topic    string   `json:"topic" yaml:"topic"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// DefaultTopicVocabulary 蓝牙协议栈各层的关键词表
func DefaultTopicVocabulary() []TopicKeywords {
	return []TopicKeywords{
		{Topic: "gatt", Keywords: []string{"gatt", "att", "characteristic", "descriptor", "service", "notification", "indication"}},
		{Topic: "security", Keywords: []string{"smp", "pairing", "bonding", "encryption", "ltk", "irk", "passkey", "privacy"}},
		{Topic: "l2cap", Keywords: []string{"l2cap", "mtu", "mps", "credit", "psm", "segmentation"}},
		{Topic: "link_layer", Keywords: []string{"advertising", "scanning", "connection", "interval", "latency", "supervision", "channel"}},
		{Topic: "hci", Keywords: []string{"hci", "controller", "command", "event", "opcode"}},
		{Topic: "phy", Keywords: []string{"phy", "radio", "rssi", "coded", "modulation", "antenna"}},
		{Topic: "audio", Keywords: []string{"a2dp", "avrcp", "hfp", "lc3", "codec", "isochronous", "broadcast", "auracast"}},
		{Topic: "gap", Keywords: []string{"gap", "central", "peripheral", "discovery", "discoverable", "role"}},
	}
}

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// TopicClassifier 将片段归入主题簇
type TopicClassifier struct {
	vocabulary []TopicKeywords
}

// NewTopicClassifier 创建分类器，vocabulary 为空时使用默认词表
func NewTopicClassifier(vocabulary []TopicKeywords) *TopicClassifier {
	if len(vocabulary) == 0 {
		vocabulary = DefaultTopicVocabulary()
	}
	return &TopicClassifier{vocabulary: vocabulary}
}

// Classify 返回片段主题：元数据 topic/protocol_layer，其次词表命中最多的主题，
// 再次为标题或来源，最后为 UnknownTopic.
func (tc *TopicClassifier) Classify(c RetrievedChunk) string {
	if t := strings.ToLower(strings.TrimSpace(c.Metadata.Topic)); t != "" {
		return t
	}

	counts := make(map[string]int)
	for _, w := range wordPattern.FindAllString(strings.ToLower(c.Content), -1) {
		counts[w]++
	}
	best, bestHits := "", 0
	for _, entry := range tc.vocabulary {
		hits := 0
		for _, kw := range entry.Keywords {
			hits += counts[strings.ToLower(kw)]
		}
		if hits > bestHits {
			best, bestHits = entry.Topic, hits
		}
	}
	if best != "" {
		return best
	}

	if t := strings.ToLower(strings.TrimSpace(c.Metadata.Title)); t != "" {
		return t
	}
	if s := strings.ToLower(strings.TrimSpace(c.Metadata.Source)); s != "" {
		return s
	}
	return UnknownTopic
}

// TopicCluster 同一主题下的片段，保持融合顺序
type TopicCluster struct {
	Topic  string
	Chunks []RetrievedChunk
}

// Cluster 按主题分组，簇按首次出现顺序排列
func (tc *TopicClassifier) Cluster(chunks []RetrievedChunk) []TopicCluster {
	index := make(map[string]int)
	var clusters []TopicCluster
	for _, c := range chunks {
		topic := tc.Classify(c)
		c.Metadata.Topic = topic
		i, ok := index[topic]
		if !ok {
			i = len(clusters)
			index[topic] = i
			clusters = append(clusters, TopicCluster{Topic: topic})
		}
		clusters[i].Chunks = append(clusters[i].Chunks, c)
	}
	return clusters
}

var capitalizedToken = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_]{2,}\b`)

// LinkNotes 找出同一簇内出现在至少两个片段中的大写术语，生成跨文档关联说明
func LinkNotes(clusters []TopicCluster) []string {
	var notes []string
	for _, cl := range clusters {
		if len(cl.Chunks) < 2 {
			continue
		}
		seenIn := make(map[string]int)
		for _, c := range cl.Chunks {
			uniq := make(map[string]bool)
			for _, tok := range capitalizedToken.FindAllString(c.Content, -1) {
				uniq[tok] = true
			}
			for tok := range uniq {
				seenIn[tok]++
			}
		}
		var shared []string
		for tok, n := range seenIn {
			if n >= 2 {
				shared = append(shared, tok)
			}
		}
		if len(shared) == 0 {
			continue
		}
		sort.Strings(shared)
		if len(shared) > 5 {
			shared = shared[:5]
		}
		notes = append(notes, fmt.Sprintf("Topic %q: %d chunks share concepts %s", cl.Topic, len(cl.Chunks), strings.Join(shared, ", ")))
	}
	return notes
}

// Allocate 按主题轮询分配上下文名额：每簇 floor(total/#clusters)，
// 不足部分按融合顺序补齐到 total.
func Allocate(fused []RetrievedChunk, clusters []TopicCluster, total int) []RetrievedChunk {
	if total <= 0 || len(fused) == 0 {
		return nil
	}
	if len(clusters) == 0 {
		if len(fused) > total {
			return append([]RetrievedChunk(nil), fused[:total]...)
		}
		return append([]RetrievedChunk(nil), fused...)
	}

	per := total / len(clusters)
	picked := make(map[string]bool)
	out := make([]RetrievedChunk, 0, total)

	for round := 0; round < per; round++ {
		for _, cl := range clusters {
			if round < len(cl.Chunks) && len(out) < total {
				out = append(out, cl.Chunks[round])
				picked[cl.Chunks[round].ID] = true
			}
		}
	}

	topicOf := make(map[string]string)
	for _, cl := range clusters {
		for _, c := range cl.Chunks {
			topicOf[c.ID] = cl.Topic
		}
	}
	for _, c := range fused {
		if len(out) >= total {
			break
		}
		if picked[c.ID] {
			continue
		}
		if t, ok := topicOf[c.ID]; ok {
			c.Metadata.Topic = t
		}
		out = append(out, c)
		picked[c.ID] = true
	}
	return out
}

// KnowledgeGaps 检测覆盖不足：无上下文或主题少于两个
func KnowledgeGaps(query string, blocks int, clusters []TopicCluster) []string {
	if blocks == 0 {
		return []string{fmt.Sprintf("No relevant context was found for %q.", query)}
	}
	if len(clusters) < 2 {
		topic := UnknownTopic
		if len(clusters) == 1 {
			topic = clusters[0].Topic
		}
		return []string{fmt.Sprintf("Retrieved context covers a single topic (%s); related areas may be missing.", topic)}
	}
	return nil
}
