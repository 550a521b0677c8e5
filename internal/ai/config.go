package ai

import "fmt"

// Config carries provider connection settings for both embeddings and
// generation. The zero value is not usable; Validate enforces the required
// fields.
type Config struct {
	BaseURL         string
	Token           string
	EmbeddingModel  string
	Dimension       int
	BatchSize       int
	GenerationModel string
	Temperature     float64
	MaxTokens       int
}

// Validate checks required fields and fills usable defaults.
func (c *Config) Validate() error {
	if c.EmbeddingModel == "" {
		return fmt.Errorf("ai: embedding model is required")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("ai: embedding dimension must be > 0")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Token == "" {
		// Local OpenAI-compatible services accept any token.
		c.Token = "none"
	}
	if c.GenerationModel == "" {
		c.GenerationModel = "gpt-3.5-turbo"
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.1
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1000
	}
	return nil
}
