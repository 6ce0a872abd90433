package config

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	pipelineOnce   sync.Once
	pipelineConfig *PipelineConfig
)

// PipelineConfig holds the bounds every stage works within.
type PipelineConfig struct {
	OCRMaxPages        int           `yaml:"ocrMaxPages"`
	OCRDPI             int           `yaml:"ocrDpi"`
	OCRLanguages       []string      `yaml:"ocrLanguages"`
	OCRConcurrency     int           `yaml:"ocrConcurrency"`
	ImageDPI           int           `yaml:"imageDpi"`
	PromptMaxChars     int           `yaml:"promptMaxChars"`
	MaxCandidates      int           `yaml:"maxCandidates"`
	PriceLookahead     int           `yaml:"priceLookahead"`
	ExtractedTextLimit int           `yaml:"extractedTextLimit"`
	EmbeddingDimension int           `yaml:"embeddingDimension"`
	PreviewSize        int           `yaml:"previewSize"`
	ProcessTimeout     time.Duration `yaml:"processTimeout"`
	ToolTimeout        time.Duration `yaml:"toolTimeout"`
}

// DefaultPipelineConfig returns the built-in limits.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		OCRMaxPages:        5,
		OCRDPI:             300,
		OCRLanguages:       []string{"eng"},
		OCRConcurrency:     2,
		ImageDPI:           150,
		PromptMaxChars:     4000,
		MaxCandidates:      50,
		PriceLookahead:     3,
		ExtractedTextLimit: 10000,
		EmbeddingDimension: 384,
		PreviewSize:        5,
		ProcessTimeout:     30 * time.Minute,
		ToolTimeout:        2 * time.Minute,
	}
}

func GetPipelineConfig() *PipelineConfig {
	pipelineOnce.Do(func() {
		loadEnv()

		pipelineConfig = DefaultPipelineConfig()
		if path := getString("PIPELINE_CONFIG", ""); path != "" {
			if err := pipelineConfig.LoadFile(path); err != nil {
				log.Printf("Warning: %v, using defaults", err)
			}
		}
		pipelineConfig.ProcessTimeout = getDuration("PROCESS_TIMEOUT", pipelineConfig.ProcessTimeout)
	})
	return pipelineConfig
}

// LoadFile overlays the YAML file at path onto c. Zero values in the file
// leave the current value untouched.
func (c *PipelineConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read pipeline config %s: %w", path, err)
	}
	var override PipelineConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("failed to parse pipeline config %s: %w", path, err)
	}
	c.merge(&override)
	return nil
}

func (c *PipelineConfig) merge(o *PipelineConfig) {
	setInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	setInt(&c.OCRMaxPages, o.OCRMaxPages)
	setInt(&c.OCRDPI, o.OCRDPI)
	setInt(&c.OCRConcurrency, o.OCRConcurrency)
	setInt(&c.ImageDPI, o.ImageDPI)
	setInt(&c.PromptMaxChars, o.PromptMaxChars)
	setInt(&c.MaxCandidates, o.MaxCandidates)
	setInt(&c.PriceLookahead, o.PriceLookahead)
	setInt(&c.ExtractedTextLimit, o.ExtractedTextLimit)
	setInt(&c.EmbeddingDimension, o.EmbeddingDimension)
	setInt(&c.PreviewSize, o.PreviewSize)
	if len(o.OCRLanguages) > 0 {
		c.OCRLanguages = o.OCRLanguages
	}
	if o.ProcessTimeout > 0 {
		c.ProcessTimeout = o.ProcessTimeout
	}
	if o.ToolTimeout > 0 {
		c.ToolTimeout = o.ToolTimeout
	}
}
