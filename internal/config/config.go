// Package config holds all nudge configuration: one explicit struct per
// concern, loaded from a YAML file with environment overrides. Every tunable
// the pipeline uses (gate weights, cooldown, retrieval weights, caps) lives
// here so tests can inject deterministic thresholds.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all nudge configuration.
type Config struct {
	// DataDir is where the store database, logs and the observation spool live.
	DataDir string `yaml:"data_dir"`

	Store      StoreConfig      `yaml:"store"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Gate       GateConfig       `yaml:"gate"`
	Cooldown   CooldownConfig   `yaml:"cooldown"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Composer   ComposerConfig   `yaml:"composer"`
	Collector  CollectorConfig  `yaml:"collector"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StoreConfig configures the SQLite context store.
type StoreConfig struct {
	// Path to the database file. Relative paths resolve against DataDir.
	Path string `yaml:"path"`
}

// LLMConfig configures the chat-completion client used by the composer.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// TimeoutDuration parses the timeout string, defaulting to 10s.
func (c LLMConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// EmbeddingConfig configures the embedding provider. An empty Provider means
// semantic search is unavailable; the pipeline degrades gracefully.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "", "ollama" or "genai"

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
}

// ClassifierConfig configures the remote intent classifier endpoint.
type ClassifierConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`

	// TriggerThreshold is the minimum classifier score for a suggestion to
	// be surfaced to the user.
	TriggerThreshold float64 `yaml:"trigger_threshold"`
}

// TimeoutDuration parses the timeout string, defaulting to 10s.
func (c ClassifierConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// GateConfig configures the heuristic gate and the event buffer feeding it.
type GateConfig struct {
	// Threshold gates whether the remote classifier is invoked at all.
	Threshold float64 `yaml:"threshold"`

	// MinTextLen hard-rejects windows with less total text than this.
	MinTextLen int `yaml:"min_text_len"`

	// Evidence weights, summed and clamped to [0,1].
	AnyTextWeight      float64 `yaml:"any_text_weight"`
	TextChangeBonus    float64 `yaml:"text_change_bonus"`
	CommsAppBonus      float64 `yaml:"comms_app_bonus"`
	TextInputRoleBonus float64 `yaml:"text_input_role_bonus"`

	// SystemApps are hard-rejected active apps (file manager, settings, launcher).
	SystemApps []string `yaml:"system_apps"`
	// CommsApps are high-value communication apps that earn the comms bonus.
	CommsApps []string `yaml:"comms_apps"`
	// TextInputRoles are focused-element roles that earn the input bonus.
	TextInputRoles []string `yaml:"text_input_roles"`

	// BufferSize bounds the event ring; oldest evicted on overflow.
	BufferSize int `yaml:"buffer_size"`
	// RecentWindow is how many buffered events the gate inspects.
	RecentWindow int `yaml:"recent_window"`
	// StateTexts is how many distinct recent texts SystemState keeps.
	StateTexts int `yaml:"state_texts"`
}

// CooldownConfig configures the minimum spacing between surfaced suggestions.
// The shipped product carried two variants (enforced and disabled); cooldown
// is therefore an explicit policy rather than a hardwired invariant.
type CooldownConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Duration string `yaml:"duration"`
}

// DurationValue parses the cooldown duration, defaulting to 30s.
func (c CooldownConfig) DurationValue() time.Duration {
	return parseDuration(c.Duration, 30*time.Second)
}

// RetrievalConfig configures the context retriever's caps and fusion weights.
type RetrievalConfig struct {
	MaxResults       int `yaml:"max_results"`
	SemanticTopK     int `yaml:"semantic_top_k"`
	LexicalTerms     int `yaml:"lexical_terms"`
	LexicalPerTerm   int `yaml:"lexical_per_term"`
	SourceRecencyCap int `yaml:"source_recency_cap"`
	RecencySampleCap int `yaml:"recency_sample_cap"`

	RecencyWeight      float64 `yaml:"recency_weight"`
	RelevanceWeight    float64 `yaml:"relevance_weight"`
	EntityWeight       float64 `yaml:"entity_weight"`
	EntitySearchBoost  float64 `yaml:"entity_search_boost"`
	ContentEntityBoost float64 `yaml:"content_entity_boost"`
}

// ComposerConfig configures draft composition and its validation gate.
type ComposerConfig struct {
	MinBodyChars int `yaml:"min_body_chars"`
	HistorySize  int `yaml:"history_size"`
}

// CollectorConfig configures observation ingestion.
type CollectorConfig struct {
	// SpoolDir is watched for observation JSON files dropped by the OS tap.
	// Relative paths resolve against DataDir.
	SpoolDir string `yaml:"spool_dir"`
	// MaxContentLen caps the surfaced chunk content; 0 means unbounded.
	MaxContentLen int `yaml:"max_content_len"`
}

// LoggingConfig configures the category debug logger.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration with all observed pipeline
// constants as defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Store: StoreConfig{
			Path: "nudge.db",
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: "10s",
		},
		Embedding: EmbeddingConfig{
			Provider:       "",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		Classifier: ClassifierConfig{
			BaseURL:          "http://localhost:8787",
			Timeout:          "10s",
			TriggerThreshold: 0.5,
		},
		Gate: GateConfig{
			Threshold:          0.6,
			MinTextLen:         10,
			AnyTextWeight:      0.5,
			TextChangeBonus:    0.2,
			CommsAppBonus:      0.2,
			TextInputRoleBonus: 0.1,
			SystemApps: []string{
				"Finder", "System Settings", "System Preferences",
				"Spotlight", "Dock", "loginwindow",
			},
			CommsApps: []string{
				"Mail", "Slack", "Messages", "Discord", "Telegram",
				"Microsoft Outlook", "Thunderbird",
			},
			TextInputRoles: []string{
				"AXTextField", "AXTextArea", "AXComboBox", "AXSearchField",
			},
			BufferSize:   100,
			RecentWindow: 20,
			StateTexts:   5,
		},
		Cooldown: CooldownConfig{
			Enabled:  true,
			Duration: "30s",
		},
		Retrieval: RetrievalConfig{
			MaxResults:         10,
			SemanticTopK:       20,
			LexicalTerms:       3,
			LexicalPerTerm:     10,
			SourceRecencyCap:   5,
			RecencySampleCap:   10,
			RecencyWeight:      0.3,
			RelevanceWeight:    0.5,
			EntityWeight:       0.2,
			EntitySearchBoost:  0.5,
			ContentEntityBoost: 0.3,
		},
		Composer: ComposerConfig{
			MinBodyChars: 40,
			HistorySize:  50,
		},
		Collector: CollectorConfig{
			SpoolDir:      "spool",
			MaxContentLen: 0,
		},
		Logging: LoggingConfig{
			Debug: false,
			Level: "info",
		},
	}
}

// Load reads configuration from the given YAML file, layered over defaults,
// then applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets secrets and endpoints come from the environment so
// they never need to live in the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NUDGE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("NUDGE_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("NUDGE_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("NUDGE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("NUDGE_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("NUDGE_GENAI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("NUDGE_CLASSIFIER_URL"); v != "" {
		c.Classifier.BaseURL = v
	}
	if v := os.Getenv("NUDGE_GATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Gate.Threshold = f
		}
	}
	if v := os.Getenv("NUDGE_COOLDOWN_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cooldown.Enabled = b
		}
	}
	if v := os.Getenv("NUDGE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Debug = b
		}
	}
}

// StorePath returns the database path resolved against DataDir.
func (c *Config) StorePath() string {
	return resolvePath(c.DataDir, c.Store.Path)
}

// SpoolPath returns the observation spool path resolved against DataDir.
func (c *Config) SpoolPath() string {
	return resolvePath(c.DataDir, c.Collector.SpoolDir)
}

func resolvePath(dataDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nudge"
	}
	return filepath.Join(home, ".nudge")
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
