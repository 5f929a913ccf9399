package rerank

import "time"

// HTTPConfig configures the generic HTTP reranker provider.
type HTTPConfig struct {
	Name     string        `json:"name" yaml:"name"`
	APIKey   string        `json:"api_key" yaml:"api_key"`
	BaseURL  string        `json:"base_url" yaml:"base_url"`
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	Model    string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultHTTPConfig returns default reranker config.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Name:     "http-rerank",
		BaseURL:  "http://localhost:8082",
		Endpoint: "/v1/rerank",
		Timeout:  30 * time.Second,
	}
}
