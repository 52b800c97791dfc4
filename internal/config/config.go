package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"newsbrief/internal/core"
)

// Config holds all application configuration.
type Config struct {
	App       App       `mapstructure:"app"`
	AI        AI        `mapstructure:"ai"`
	Feeds     Feeds     `mapstructure:"feeds"`
	Dedup     Dedup     `mapstructure:"dedup"`
	Papers    Papers    `mapstructure:"papers"`
	Validator Validator `mapstructure:"validator"`
	Output    Output    `mapstructure:"output"`
}

// App holds general application configuration.
type App struct {
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
}

// AI holds LLM configuration.
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration. An empty APIKey routes the
// whole pipeline into pass-through mode.
type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Timeout string `mapstructure:"timeout"`
}

// Feeds holds feed fetching configuration.
type Feeds struct {
	SourcesFile     string `mapstructure:"sources_file"`
	UserAgent       string `mapstructure:"user_agent"`
	Timeout         string `mapstructure:"timeout"`
	MaxItemsPerFeed int    `mapstructure:"max_items_per_feed"`
	Concurrency     int    `mapstructure:"concurrency"`
}

// Dedup holds clustering policy. Threshold and window are policy knobs, not
// architecture, so they live here rather than in code.
type Dedup struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	WindowHours         int     `mapstructure:"window_hours"`
	RetentionDays       int     `mapstructure:"retention_days"`
}

// Papers holds the paper pipeline configuration.
type Papers struct {
	MinCandidates      int    `mapstructure:"min_candidates"`
	MinCitations       int    `mapstructure:"min_citations"`
	HistoryWindowDays  int    `mapstructure:"history_window_days"`
	SemanticScholarURL string `mapstructure:"semantic_scholar_url"`
}

// Validator holds deterministic post-processing configuration.
type Validator struct {
	AllowedDomains   []string `mapstructure:"allowed_domains"`
	BannedPhrases    []string `mapstructure:"banned_phrases"`
	MaxSecurityItems int      `mapstructure:"max_security_items"`
	MaxSelection     int      `mapstructure:"max_selection"`
}

// Output holds artifact output configuration.
type Output struct {
	Directory string `mapstructure:"directory"`
}

var globalConfig *Config

// Load loads the configuration from .env, an optional YAML config file, and
// environment variables, in that order of increasing precedence.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".newsbrief")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", "data")

	viper.SetDefault("ai.gemini.model", "gemini-2.0-flash")
	viper.SetDefault("ai.gemini.timeout", "60s")

	viper.SetDefault("feeds.sources_file", "feeds.yml")
	viper.SetDefault("feeds.user_agent", "newsbrief/1.0")
	viper.SetDefault("feeds.timeout", "30s")
	viper.SetDefault("feeds.max_items_per_feed", 20)
	viper.SetDefault("feeds.concurrency", 8)

	viper.SetDefault("dedup.similarity_threshold", 0.6)
	viper.SetDefault("dedup.window_hours", 48)
	viper.SetDefault("dedup.retention_days", 7)

	viper.SetDefault("papers.min_candidates", 3)
	viper.SetDefault("papers.min_citations", 200)
	viper.SetDefault("papers.history_window_days", 30)
	viper.SetDefault("papers.semantic_scholar_url", "https://api.semanticscholar.org/graph/v1/paper/search")

	viper.SetDefault("validator.allowed_domains", []string{"nvd.nist.gov", "cve.org"})
	viper.SetDefault("validator.banned_phrases", defaultBannedPhrases)
	viper.SetDefault("validator.max_security_items", 5)
	viper.SetDefault("validator.max_selection", 10)

	viper.SetDefault("output.directory", "digests")
}

// defaultBannedPhrases is the stock list of promotional or content-free
// phrasing the validator excises. Overridable via validator.banned_phrases.
var defaultBannedPhrases = []string{
	"is attracting attention",
	"remains to be seen",
	"is worth watching",
	"experts warn",
	"game changer",
	"revolutionary breakthrough",
	"you should buy",
	"guaranteed returns",
	"cannot be overstated",
}

func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"SUMMARIZER_API_KEY",
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"NEWSBRIEF_DEBUG",
	})

	bindEnvKeys("feeds.sources_file", []string{
		"NEWSBRIEF_FEEDS_FILE",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key.
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig expands paths and validates durations.
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Output.Directory != "" {
		config.Output.Directory = expandPath(config.Output.Directory)
	}

	durations := map[string]string{
		"ai.gemini.timeout": config.AI.Gemini.Timeout,
		"feeds.timeout":     config.Feeds.Timeout,
	}
	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	if config.Dedup.SimilarityThreshold < 0 || config.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in [0,1], got %f", config.Dedup.SimilarityThreshold)
	}

	return nil
}

// expandPath expands ~ and environment variables in paths.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// sourcesFile is the on-disk shape of the feed source list.
type sourcesFile struct {
	Sources []core.FeedSource `yaml:"sources"`
}

// LoadSources reads the feed source list from the configured YAML file.
func LoadSources(path string) ([]core.FeedSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}

	var parsed sourcesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}
	if len(parsed.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s lists no feeds", path)
	}

	for i := range parsed.Sources {
		s := parsed.Sources[i]
		if s.Name == "" || s.URL == "" {
			return nil, fmt.Errorf("sources file %s: entry %d missing name or url", path, i)
		}
	}

	return parsed.Sources, nil
}

// GetGeminiTimeout returns the parsed Gemini call timeout.
func GetGeminiTimeout() time.Duration {
	d, err := time.ParseDuration(Get().AI.Gemini.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetFeedTimeout returns the parsed per-feed HTTP timeout.
func GetFeedTimeout() time.Duration {
	d, err := time.ParseDuration(Get().Feeds.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Convenience getters for commonly used configuration values.
func GetGeminiAPIKey() string    { return Get().AI.Gemini.APIKey }
func GetGeminiModel() string     { return Get().AI.Gemini.Model }
func GetOutputDirectory() string { return Get().Output.Directory }
func GetDataDirectory() string   { return Get().App.DataDir }
func IsDebugMode() bool          { return Get().App.Debug }

// Reset clears the global configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viper.Reset()
}
