package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mlindstrom/docforge/internal/chunker"
	"github.com/mlindstrom/docforge/internal/extractor"
	"github.com/mlindstrom/docforge/internal/keyword"
)

type Config struct {
	// Storage
	DataDir  string
	IndexDir string

	// Worker pool
	PoolSize int

	// Chunking
	MaxTokens        int
	OverlapFraction  float64
	UseTokenCounting bool

	// Extraction tolerances, in points
	LineTolerance  float64
	LineAdvanceMax float64
	ParagraphGap   float64
	FontTolerance  float64
	ColumnGap      float64
	AlignTolerance float64

	// Heading tiers, ratios over the body font size
	Heading1Ratio float64
	Heading2Ratio float64
	Heading3Ratio float64

	// BM25
	K1             float64
	B              float64
	Epsilon        float64
	MinTokenLength int
}

func Load() Config {
	cfg := Config{
		DataDir:  envOr("DOCFORGE_DATA_DIR", "data/corpus"),
		IndexDir: envOr("DOCFORGE_INDEX_DIR", "data/index"),

		PoolSize: envInt("DOCFORGE_POOL_SIZE", 0),

		MaxTokens:        envInt("DOCFORGE_MAX_TOKENS", 1000),
		OverlapFraction:  envFloat("DOCFORGE_OVERLAP_FRACTION", 0.1),
		UseTokenCounting: envBool("DOCFORGE_TOKEN_COUNTING", true),

		LineTolerance:  envFloat("DOCFORGE_LINE_TOLERANCE", 5),
		LineAdvanceMax: envFloat("DOCFORGE_LINE_ADVANCE_MAX", 18),
		ParagraphGap:   envFloat("DOCFORGE_PARAGRAPH_GAP", 12),
		FontTolerance:  envFloat("DOCFORGE_FONT_TOLERANCE", 1.5),
		ColumnGap:      envFloat("DOCFORGE_COLUMN_GAP", 48),
		AlignTolerance: envFloat("DOCFORGE_ALIGN_TOLERANCE", 8),

		Heading1Ratio: envFloat("DOCFORGE_HEADING1_RATIO", 1.30),
		Heading2Ratio: envFloat("DOCFORGE_HEADING2_RATIO", 1.15),
		Heading3Ratio: envFloat("DOCFORGE_HEADING3_RATIO", 1.05),

		K1:             envFloat("DOCFORGE_BM25_K1", 1.2),
		B:              envFloat("DOCFORGE_BM25_B", 0.75),
		Epsilon:        envFloat("DOCFORGE_BM25_EPSILON", 0.25),
		MinTokenLength: envInt("DOCFORGE_MIN_TOKEN_LENGTH", 3),
	}

	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = 3
	}

	return cfg
}

func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DOCFORGE_DATA_DIR is required")
	}
	if c.IndexDir == "" {
		return fmt.Errorf("DOCFORGE_INDEX_DIR is required")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("DOCFORGE_MAX_TOKENS must be at least 1")
	}
	if c.OverlapFraction < 0 || c.OverlapFraction >= 1 {
		return fmt.Errorf("DOCFORGE_OVERLAP_FRACTION must be in [0, 1)")
	}
	if c.K1 <= 0 {
		return fmt.Errorf("DOCFORGE_BM25_K1 must be positive")
	}
	if c.B < 0 || c.B > 1 {
		return fmt.Errorf("DOCFORGE_BM25_B must be in [0, 1]")
	}
	return nil
}

// ExtractorConfig maps the tolerance settings onto an extractor config.
func (c Config) ExtractorConfig() extractor.Config {
	return extractor.Config{
		LineTolerance:  c.LineTolerance,
		LineAdvanceMax: c.LineAdvanceMax,
		ParagraphGap:   c.ParagraphGap,
		FontTolerance:  c.FontTolerance,
		ColumnGap:      c.ColumnGap,
		AlignTolerance: c.AlignTolerance,
		Heading1Ratio:  c.Heading1Ratio,
		Heading2Ratio:  c.Heading2Ratio,
		Heading3Ratio:  c.Heading3Ratio,
	}
}

// ChunkerConfig maps the chunking settings onto a chunker config.
func (c Config) ChunkerConfig() chunker.Config {
	return chunker.Config{
		MaxTokens:        c.MaxTokens,
		OverlapFraction:  c.OverlapFraction,
		UseTokenCounting: c.UseTokenCounting,
	}
}

// IndexParams maps the BM25 settings onto index parameters.
func (c Config) IndexParams() keyword.Params {
	return keyword.Params{K1: c.K1, B: c.B, Epsilon: c.Epsilon}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
