package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		EmbedModel  string  `yaml:"embed_model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		RateLimit   float64 `yaml:"rate_limit"`
	} `yaml:"llm"`

	Graph struct {
		URI            string `yaml:"uri"`
		Username       string `yaml:"username"`
		Password       string `yaml:"password"`
		Database       string `yaml:"database"`
		VectorDim      int    `yaml:"vector_dim"`
		VectorIndex    string `yaml:"vector_index"`
		FulltextIndex  string `yaml:"fulltext_index"`
		PoolSize       int    `yaml:"pool_size"`
		AcquireTimeout int    `yaml:"acquire_timeout_ms"`
		QueryTimeout   int    `yaml:"query_timeout_ms"`
	} `yaml:"graph"`

	Scraper struct {
		MaxDepth          int      `yaml:"max_depth"`
		RateLimit         float64  `yaml:"rate_limit"`
		IgnorePatterns    []string `yaml:"ignore_patterns"`
		AllowedExtensions []string `yaml:"allowed_extensions"`
	} `yaml:"scraper"`

	Chunker struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"chunker"`

	Search struct {
		DefaultK         int     `yaml:"default_k"`
		DefaultAlpha     float64 `yaml:"default_alpha"`
		Threshold        float64 `yaml:"threshold"`
		AllowDegraded    bool    `yaml:"allow_degraded"`
		LegTimeout       int     `yaml:"leg_timeout_ms"`
		CacheCapacity    int     `yaml:"cache_capacity"`
		IngestionWorkers int     `yaml:"ingestion_workers"`
	} `yaml:"search"`

	UI struct {
		Streaming bool   `yaml:"streaming"`
		Theme     string `yaml:"theme"`
	} `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/grag/config.yaml"),
			"/etc/grag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.RateLimit == 0 {
		config.LLM.RateLimit = 10.0
	}

	if config.Graph.URI == "" {
		config.Graph.URI = "bolt://localhost:7687"
	}
	if config.Graph.Username == "" {
		config.Graph.Username = "neo4j"
	}
	if config.Graph.Database == "" {
		config.Graph.Database = "neo4j"
	}
	if config.Graph.VectorDim == 0 {
		config.Graph.VectorDim = 384
	}
	if config.Graph.VectorIndex == "" {
		config.Graph.VectorIndex = "chunk_embeddings"
	}
	if config.Graph.FulltextIndex == "" {
		config.Graph.FulltextIndex = "chunk_text"
	}
	if config.Graph.PoolSize == 0 {
		config.Graph.PoolSize = 10
	}
	if config.Graph.AcquireTimeout == 0 {
		config.Graph.AcquireTimeout = 5000
	}
	if config.Graph.QueryTimeout == 0 {
		config.Graph.QueryTimeout = 10000
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Chunker.ChunkSize == 0 {
		config.Chunker.ChunkSize = 300
	}
	if config.Chunker.ChunkOverlap == 0 {
		config.Chunker.ChunkOverlap = 50
	}

	if config.Search.DefaultK == 0 {
		config.Search.DefaultK = 5
	}
	if config.Search.DefaultAlpha == 0 {
		config.Search.DefaultAlpha = 0.5
	}
	if config.Search.LegTimeout == 0 {
		config.Search.LegTimeout = 5000
	}
	if config.Search.CacheCapacity == 0 {
		config.Search.CacheCapacity = 100
	}
	if config.Search.IngestionWorkers == 0 {
		config.Search.IngestionWorkers = 4
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Graph.URI = uri
	}
	if user := os.Getenv("NEO4J_USERNAME"); user != "" {
		config.Graph.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Graph.Password = pass
	}
}
