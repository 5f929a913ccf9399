package llm

import (
	"fmt"
	"strings"
)

// FirstChoice safely returns the first choice from a ChatResponse.
// Returns an error if the response is nil or has no choices.
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, fmt.Errorf("nil ChatResponse")
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, fmt.Errorf("empty choices in ChatResponse (model returned no choices)")
	}
	return resp.Choices[0], nil
}

// FirstText returns the first non-empty choice content.
func FirstText(resp *ChatResponse) (string, error) {
	if _, err := FirstChoice(resp); err != nil {
		return "", err
	}
	for _, c := range resp.Choices {
		if s := strings.TrimSpace(c.Message.Content); s != "" {
			return s, nil
		}
	}
	return "", &Error{Code: ErrEmptyCompletion, Message: "completion contained no text", Provider: resp.Provider}
}
