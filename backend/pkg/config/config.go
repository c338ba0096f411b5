package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pkm/backend/internal/constants"
	apperrors "pkm/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Env string

	// Knowledge base
	FactsFile    string
	RelationsCSV string
	KnowledgeDir string
	OpenCommand  string   // Overrides the platform "open" command when set
	IgnoreGlobs  []string // Files in KnowledgeDir never turned into notes

	// Watchers
	SyncOnChange bool
	Debounce     time.Duration

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
}

// Load reads configuration from environment variables. envFile may be empty,
// in which case a .env in the working directory is used when present.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// Try to load .env file, but don't fail if it doesn't exist
		_ = godotenv.Load()
	}

	cfg := &Config{
		Env:           getEnv("ENV", "development"),
		FactsFile:     getEnv("PKM_FACTS_FILE", constants.DefaultFactsFile),
		RelationsCSV:  getEnv("PKM_RELATIONS_CSV", constants.DefaultRelationsCSV),
		KnowledgeDir:  getEnv("PKM_KNOWLEDGE_DIR", constants.DefaultKnowledgeDir),
		OpenCommand:   getEnv("PKM_OPEN_COMMAND", ""),
		IgnoreGlobs:   getEnvList("PKM_IGNORE", append([]string(nil), constants.DefaultIgnoreGlobs...)),
		SyncOnChange:  getEnvBool("PKM_SYNC_ON_CHANGE", false),
		Debounce:      time.Duration(getEnvInt("PKM_DEBOUNCE_MS", constants.DefaultDebounceMillis)) * time.Millisecond,
		Neo4jURI:      getEnv("NEO4J_URI", constants.DefaultNeo4jURI),
		Neo4jUser:     getEnv("NEO4J_USER", constants.DefaultNeo4jUser),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase: getEnv("NEO4J_DATABASE", constants.DefaultNeo4jDatabase),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.FactsFile == "" {
		return apperrors.NewConfigMissingRequired("PKM_FACTS_FILE")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("PKM_DEBOUNCE_MS must not be negative")
	}
	return nil
}

// ValidateGraph checks the settings only needed to talk to Neo4j. Commands
// that never sync can run without a password configured.
func (c *Config) ValidateGraph() error {
	if c.Neo4jURI == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4jUser == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_USER")
	}
	if c.Neo4jPassword == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
