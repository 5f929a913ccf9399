package correction

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"
)

// KeyPrefix KV 中纠错记录的键前缀
const KeyPrefix = "correction:"

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "to": true, "of": true, "in": true, "on": true, "for": true, "and": true,
	"or": true, "do": true, "does": true, "did": true, "how": true, "what": true, "i": true,
	"can": true, "my": true, "with": true, "it": true, "this": true, "that": true,
	"you": true, "please": true, "me": true, "should": true,
}

// NormalizeQuery 归一化问题文本：小写、去标点、合并空白、去停用词.
// 全部为停用词时保留原词. 对自身输出幂等.
func NormalizeQuery(q string) string {
	words := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if !stopWords[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		kept = words
	}
	return strings.Join(kept, " ")
}

// ID 返回归一化问题的内容寻址标识（sha256 前 32 个十六进制字符）
func ID(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:32]
}

// Key 返回纠错记录在 KV 中的键
func Key(id string) string {
	return KeyPrefix + id
}

// vectorID 返回第 i 个问法对应的向量条目 ID：id, id_v1, id_v2...
func vectorID(id string, i int) string {
	if i == 0 {
		return id
	}
	return id + "_v" + strconv.Itoa(i)
}
