package validation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// MaxWebRefs 文档之外允许的网页引用编号上限
const MaxWebRefs = 10

var (
	// citeGroup 匹配一个引用括号，允许逗号分隔的多个引用
	citeGroup = regexp.MustCompile(`\[\s*([#W]\d+(?:\s*[,;]\s*[#W]\d+)*)\s*\]`)
	citeRef   = regexp.MustCompile(`[#W]\d+`)
)

// citeSpan 答案中的一个引用括号
type citeSpan struct {
	start, end int
	refs       []string
}

func findCitations(line string) []citeSpan {
	idx := citeGroup.FindAllStringSubmatchIndex(line, -1)
	spans := make([]citeSpan, 0, len(idx))
	for _, m := range idx {
		spans = append(spans, citeSpan{
			start: m[0],
			end:   m[1],
			refs:  citeRef.FindAllString(line[m[2]:m[3]], -1),
		})
	}
	return spans
}

// CitationRefs 返回答案中出现的全部引用编号，按出现顺序，含重复
func CitationRefs(answer string) []string {
	var refs []string
	for _, s := range findCitations(answer) {
		refs = append(refs, s.refs...)
	}
	return refs
}

func stripCitations(line string) string {
	return strings.TrimSpace(citeGroup.ReplaceAllString(line, ""))
}

// isTrailing 引用括号之后只允许出现标点与空白
func isTrailing(line string, s citeSpan) bool {
	rest := strings.TrimFunc(line[s.end:], func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(".,;:!?)*_", r)
	})
	return rest == ""
}

// refNumber 解析 "#3" / "W2" 中的序号
func refNumber(ref string) (web bool, n int) {
	web = strings.HasPrefix(ref, "W")
	n, err := strconv.Atoi(ref[1:])
	if err != nil {
		return web, 0
	}
	return web, n
}

var stopTerms = map[string]struct{}{
	"that": {}, "this": {}, "with": {}, "from": {}, "into": {}, "when": {}, "then": {},
	"than": {}, "them": {}, "they": {}, "will": {}, "shall": {}, "must": {}, "have": {},
	"been": {}, "were": {}, "which": {}, "while": {}, "where": {}, "there": {}, "their": {},
	"each": {}, "also": {}, "only": {}, "such": {}, "step": {}, "first": {}, "second": {},
	"third": {}, "finally": {}, "next": {}, "should": {}, "would": {}, "could": {}, "does": {},
}

// keyTerms 提取用于重叠度比较的关键词：小写、长度不少于 3、去除常见虚词
func keyTerms(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopTerms[w]; stop {
			continue
		}
		terms[w] = struct{}{}
	}
	return terms
}

// overlap 返回 a 中出现在 b 里的关键词比例；a 为空时返回 -1
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 {
		return -1
	}
	hit := 0
	for t := range a {
		if _, ok := b[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(a))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func quote(line string) string {
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > 120 {
		line = string(r[:117]) + "..."
	}
	return strconv.Quote(line)
}
