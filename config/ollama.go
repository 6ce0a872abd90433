package config

import (
	"sync"
	"time"
)

var (
	ollamaOnce   sync.Once
	ollamaConfig *OllamaConfig
)

type OllamaConfig struct {
	Endpoint string
	// Model pins a model when it is present on the server; otherwise the
	// prober picks one by preference.
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func GetOllamaConfig() *OllamaConfig {
	ollamaOnce.Do(func() {
		loadEnv()

		ollamaConfig = &OllamaConfig{
			Endpoint:    getString("OLLAMA_ENDPOINT", "http://localhost:11434"),
			Model:       getString("OLLAMA_MODEL", ""),
			Temperature: 0.1,
			MaxTokens:   getInt("OLLAMA_MAX_TOKENS", 2048),
			Timeout:     getDuration("OLLAMA_TIMEOUT", 120*time.Second),
		}
	})
	return ollamaConfig
}
