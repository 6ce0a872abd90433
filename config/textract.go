package config

import (
	"sync"
)

var (
	textractOnce   sync.Once
	textractConfig *TextractConfig
)

type TextractConfig struct {
	Enabled   bool
	Region    string
	AccessKey string
	SecretKey string
	// MinConfidence drops LINE blocks below this score.
	MinConfidence float32
}

// Usable reports whether Textract is switched on and has credentials.
func (c *TextractConfig) Usable() bool {
	return c.Enabled && c.Region != "" && c.AccessKey != "" && c.SecretKey != ""
}

func GetTextractConfig() *TextractConfig {
	textractOnce.Do(func() {
		loadEnv()

		textractConfig = &TextractConfig{
			Enabled:       getBool("TEXTRACT_ENABLED", false),
			Region:        getString("AWS_REGION", ""),
			AccessKey:     getString("AWS_ACCESS_KEY", ""),
			SecretKey:     getString("AWS_SECRET_KEY", ""),
			MinConfidence: float32(getInt("TEXTRACT_MIN_CONFIDENCE", 80)),
		}
	})
	return textractConfig
}
