package embedding

import "time"

// HTTPConfig configures the generic HTTP embedding provider.
type HTTPConfig struct {
	Name       string        `json:"name" yaml:"name"`
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Endpoint   string        `json:"endpoint" yaml:"endpoint"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	MaxBatch   int           `json:"max_batch,omitempty" yaml:"max_batch,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// UsePrefix 为 E5 风格模型在输入前添加 "query: " / "passage: "
	UsePrefix bool `json:"use_prefix" yaml:"use_prefix"`

	// PerItemDelay 是批量失败后逐条回退时两次请求之间的最小间隔
	PerItemDelay time.Duration `json:"per_item_delay" yaml:"per_item_delay"`
}

// DefaultHTTPConfig returns default HTTP embedding config.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Name:         "http-embedding",
		BaseURL:      "http://localhost:8081",
		Endpoint:     "/v1/embeddings",
		MaxBatch:     64,
		Timeout:      30 * time.Second,
		PerItemDelay: 500 * time.Millisecond,
	}
}
