package llm

import (
	"strings"

	"github.com/tidwall/gjson"
)

// textPaths 按优先级列出已知的生成响应信封路径。
var textPaths = []string{
	"choices.0.message.content",
	"choices.0.text",
	"choices.0.delta.content",
	"message.content",
	"response",
	"result.response",
	"output_text",
	"text",
	"generated_text",
	"0.generated_text",
	"result.text",
}

// ExtractText pulls the generated text out of a response body whose envelope
// shape is not known in advance. It returns ErrMalformedResponse when the body
// is not JSON and ErrEmptyCompletion when no known path yields non-empty text.
func ExtractText(raw []byte) (string, error) {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return "", &Error{Code: ErrEmptyCompletion, Message: "empty response body"}
	}
	if !gjson.Valid(body) {
		return "", &Error{Code: ErrMalformedResponse, Message: "response body is not valid JSON"}
	}

	root := gjson.Parse(body)
	if root.Type == gjson.String {
		if s := strings.TrimSpace(root.String()); s != "" {
			return s, nil
		}
		return "", &Error{Code: ErrEmptyCompletion, Message: "completion contained no text"}
	}

	for _, path := range textPaths {
		if s := textOf(root.Get(path)); s != "" {
			return s, nil
		}
	}

	// Responses API: output[].content[].text
	if s := joinTexts(root.Get("output.#.content.#.text")); s != "" {
		return s, nil
	}
	// Messages API: content[].text
	if s := joinTexts(root.Get("content.#.text")); s != "" {
		return s, nil
	}

	return "", &Error{Code: ErrEmptyCompletion, Message: "no text found in response envelope"}
}

// textOf 处理字符串或内容片段数组两种形态。
func textOf(v gjson.Result) string {
	switch {
	case !v.Exists():
		return ""
	case v.Type == gjson.String:
		return strings.TrimSpace(v.String())
	case v.IsArray():
		return joinTexts(v.Get("#.text"))
	}
	return ""
}

func joinTexts(v gjson.Result) string {
	if !v.Exists() {
		return ""
	}
	var parts []string
	var walk func(r gjson.Result)
	walk = func(r gjson.Result) {
		if r.IsArray() {
			for _, item := range r.Array() {
				walk(item)
			}
			return
		}
		if r.Type == gjson.String {
			if s := strings.TrimSpace(r.String()); s != "" {
				parts = append(parts, s)
			}
		}
	}
	walk(v)
	return strings.Join(parts, "\n")
}
