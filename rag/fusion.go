package rag

import "sort"

// DefaultRRFK 是 Reciprocal Rank Fusion 的平滑常数
const DefaultRRFK = 60

// FuseRRF 使用 Reciprocal Rank Fusion 合并多路检索结果.
//
// 每个列表中第 rank 位（从 0 开始）的片段得分加 1/(k+rank+1)，同 ID 片段合并.
// 列表按长度降序访问（同长度保持原顺序），同分片段保持首次出现顺序.
// 返回片段的 Score 为融合分数，结果截断到 limit（<=0 表示不截断）.
func FuseRRF(lists [][]RetrievedChunk, k, limit int) []RetrievedChunk {
	if k <= 0 {
		k = DefaultRRFK
	}

	order := make([]int, len(lists))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(lists[order[a]]) > len(lists[order[b]])
	})

	type entry struct {
		chunk RetrievedChunk
		score float64
		seen  int
	}
	byID := make(map[string]*entry)
	var entries []*entry

	for _, li := range order {
		for rank, c := range lists[li] {
			contrib := 1.0 / float64(k+rank+1)
			if e, ok := byID[c.ID]; ok {
				e.score += contrib
				continue
			}
			e := &entry{chunk: c, score: contrib, seen: len(entries)}
			byID[c.ID] = e
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].score != entries[b].score {
			return entries[a].score > entries[b].score
		}
		return entries[a].seen < entries[b].seen
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]RetrievedChunk, len(entries))
	for i, e := range entries {
		out[i] = e.chunk
		out[i].Score = e.score
	}
	return out
}
