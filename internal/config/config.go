package config

import (
	_ "embed"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Pipeline  PipelineConfig
	Search    SearchConfig
	Scan      ScanConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the in-memory HNSW index (optional, rebuilt from the database when empty)
}

type EmbeddingConfig struct {
	URL          string        // defaults to http://localhost:8000
	MaxImageSize int           // longest edge sent to the server (default 1920)
	Timeout      time.Duration // per request (default 120s)
}

type PipelineConfig struct {
	Workers   int // encoder workers (default runtime.NumCPU())
	QueueSize int // persistence queue capacity (default 64)
}

type SearchConfig struct {
	Threshold float64 // minimum cosine similarity (default 0.4)
}

type ScanConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

type defaults struct {
	Scan ScanConfig `yaml:"scan"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float within [min, max].
func envFloat(key string, defaultVal, minVal, maxVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= minVal && f <= maxVal {
		return f
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, falling back to
// defaultVal when unset.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Embedding: EmbeddingConfig{
			URL:          os.Getenv("EMBEDDING_URL"),
			MaxImageSize: envInt("EMBEDDING_MAX_IMAGE_SIZE", 1920),
			Timeout:      time.Duration(envInt("EMBEDDING_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Pipeline: PipelineConfig{
			Workers:   envInt("PIPELINE_WORKERS", runtime.NumCPU()),
			QueueSize: envInt("PIPELINE_QUEUE_SIZE", 64),
		},
		Search: SearchConfig{
			Threshold: envFloat("SEARCH_THRESHOLD", 0.4, -1, 1),
		},
		Scan: ScanConfig{
			Include: envList("SCAN_INCLUDE", d.Scan.Include),
			Exclude: envList("SCAN_EXCLUDE", d.Scan.Exclude),
		},
	}
}
