package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config represents MailGuard configuration
type Config struct {
	// Anomaly scoring settings
	Scoring ScoringConfig `yaml:"scoring"`

	// Feature extraction lookup tables
	Features FeaturesConfig `yaml:"features"`

	// Adaptive learning settings
	Learning LearningConfig `yaml:"learning"`

	// Score blending settings
	Blend BlendConfig `yaml:"blend"`

	// Performance settings
	Performance PerformanceConfig `yaml:"performance"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// ScoringConfig contains base anomaly scorer parameters
type ScoringConfig struct {
	// Minimum records required before the isolation forest is fitted.
	// Sessions below this size get the neutral score for every record.
	MinRecords   int     `yaml:"min_records"`
	NeutralScore float64 `yaml:"neutral_score"`

	// Isolation forest tuning
	Trees      int   `yaml:"trees"`
	SampleSize int   `yaml:"sample_size"`
	RandomSeed int64 `yaml:"random_seed"`

	// Risk level thresholds on the final blended score
	Thresholds RiskThresholds `yaml:"thresholds"`
}

// RiskThresholds maps final scores to risk levels
type RiskThresholds struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
}

// FeaturesConfig contains the static lookup tables used by the
// feature extractor
type FeaturesConfig struct {
	HighRiskExtensions   []string `yaml:"high_risk_extensions"`
	MediumRiskExtensions []string `yaml:"medium_risk_extensions"`
	SuspiciousPatterns   []string `yaml:"suspicious_patterns"`
	PublicDomains        []string `yaml:"public_domains"`
	CorporateMarkers     []string `yaml:"corporate_markers"`
	HighRiskDepartments  []string `yaml:"high_risk_departments"`

	Keywords KeywordLists `yaml:"keywords"`
}

// KeywordLists contains keyword categories scored against subject and
// attachment names
type KeywordLists struct {
	Urgency   []string `yaml:"urgency"`
	Financial []string `yaml:"financial"`
	Personal  []string `yaml:"personal"`
	Authority []string `yaml:"authority"`
}

// LearningConfig contains adaptive learner settings
type LearningConfig struct {
	// Minimum feedback entries before the learned score is available
	MinFeedback int `yaml:"min_feedback"`

	// Retrain after every N recorded decisions
	RetrainEvery int `yaml:"retrain_every"`

	// SGD parameters for the logistic classifier
	LearningRate float64 `yaml:"learning_rate"`
	Epochs       int     `yaml:"epochs"`
	WarmEpochs   int     `yaml:"warm_epochs"`

	// Scope of learning: "session" keeps a model per session,
	// "global" shares one model across all sessions
	Scope string `yaml:"scope"`

	// Storage backend: "memory", "sqlite" or "redis"
	Backend string `yaml:"backend"`

	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
}

// SQLiteConfig contains SQLite backend settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig contains Redis backend settings
type RedisConfig struct {
	RedisURL    string `yaml:"redis_url"`
	KeyPrefix   string `yaml:"key_prefix"`
	DatabaseNum int    `yaml:"database_num"`
}

// BlendConfig controls how base and learned scores are combined.
// The weight curve is piecewise linear across the breakpoints, clamped
// to [Floor, Ceiling]. Breakpoints must be monotone in both count and
// weight.
type BlendConfig struct {
	Floor       float64      `yaml:"floor"`
	Ceiling     float64      `yaml:"ceiling"`
	Breakpoints []Breakpoint `yaml:"breakpoints"`
}

// Breakpoint pins the blend weight at a decision count
type Breakpoint struct {
	Decisions int     `yaml:"decisions"`
	Weight    float64 `yaml:"weight"`
}

// PerformanceConfig contains performance tuning
type PerformanceConfig struct {
	MaxConcurrentRecords int `yaml:"max_concurrent_records"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Scoring: ScoringConfig{
			MinRecords:   10,
			NeutralScore: 0.5,
			Trees:        50,
			SampleSize:   256,
			RandomSeed:   42,
			Thresholds: RiskThresholds{
				Critical: 0.8,
				High:     0.6,
				Medium:   0.4,
			},
		},
		Features: FeaturesConfig{
			HighRiskExtensions: []string{
				".exe", ".scr", ".bat", ".cmd", ".com", ".pif",
				".vbs", ".js", ".jar", ".msi", ".dll", ".sys",
			},
			MediumRiskExtensions: []string{
				".zip", ".rar", ".7z", ".tar", ".gz",
				".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
				".pdf", ".rtf", ".odt", ".ods", ".odp",
			},
			SuspiciousPatterns: []string{
				"confidential", "urgent", "invoice", "payment",
				"refund", "winner", "prize", "hidden",
			},
			PublicDomains: []string{
				"gmail.com", "yahoo.com", "hotmail.com", "outlook.com",
				"aol.com", "icloud.com", "live.com", "msn.com",
				"ymail.com", "mail.com", "protonmail.com",
			},
			CorporateMarkers:    []string{"company", "corp", "enterprise"},
			HighRiskDepartments: []string{"finance", "hr", "admin", "executive"},
			Keywords: KeywordLists{
				Urgency:   []string{"urgent", "asap", "immediate", "rush", "emergency"},
				Financial: []string{"payment", "invoice", "bill", "money", "transfer", "account"},
				Personal:  []string{"personal", "private", "confidential", "secret"},
				Authority: []string{"ceo", "manager", "director", "admin", "official"},
			},
		},
		Learning: LearningConfig{
			MinFeedback:  10,
			RetrainEvery: 10,
			LearningRate: 0.01,
			Epochs:       5,
			WarmEpochs:   1,
			Scope:        "session",
			Backend:      "sqlite",
			SQLite: SQLiteConfig{
				Path: "mailguard.db",
			},
			Redis: RedisConfig{
				RedisURL:    "redis://localhost:6379",
				KeyPrefix:   "mailguard",
				DatabaseNum: 0,
			},
		},
		Blend: BlendConfig{
			Floor:   0.10,
			Ceiling: 0.70,
			Breakpoints: []Breakpoint{
				{Decisions: 10, Weight: 0.15},
				{Decisions: 30, Weight: 0.45},
				{Decisions: 50, Weight: 0.70},
			},
		},
		Performance: PerformanceConfig{
			MaxConcurrentRecords: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from file
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// If no config file specified, return defaults
	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	err = os.WriteFile(configPath, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// A 1-record session cannot yield a usable isolation path length
	if c.Scoring.MinRecords < 2 {
		return fmt.Errorf("min_records must be >= 2")
	}

	if c.Scoring.NeutralScore < 0 || c.Scoring.NeutralScore > 1 {
		return fmt.Errorf("neutral_score must be between 0 and 1")
	}

	if c.Scoring.Trees < 1 {
		return fmt.Errorf("trees must be >= 1")
	}

	if c.Scoring.SampleSize < 2 {
		return fmt.Errorf("sample_size must be >= 2")
	}

	if c.Scoring.Thresholds.Critical <= c.Scoring.Thresholds.High ||
		c.Scoring.Thresholds.High <= c.Scoring.Thresholds.Medium {
		return fmt.Errorf("risk thresholds must satisfy critical > high > medium")
	}

	if c.Learning.MinFeedback < 2 {
		return fmt.Errorf("min_feedback must be >= 2")
	}

	if c.Learning.RetrainEvery < 1 {
		return fmt.Errorf("retrain_every must be >= 1")
	}

	if c.Learning.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0")
	}

	if c.Learning.Epochs < 1 || c.Learning.WarmEpochs < 1 {
		return fmt.Errorf("epochs and warm_epochs must be >= 1")
	}

	if c.Learning.Scope != "session" && c.Learning.Scope != "global" {
		return fmt.Errorf("learning scope must be 'session' or 'global'")
	}

	switch c.Learning.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("learning backend must be 'memory', 'sqlite' or 'redis'")
	}

	if c.Learning.Backend == "sqlite" && c.Learning.SQLite.Path == "" {
		return fmt.Errorf("sqlite path cannot be empty when sqlite backend is selected")
	}

	if c.Learning.Backend == "redis" && c.Learning.Redis.RedisURL == "" {
		return fmt.Errorf("redis_url cannot be empty when redis backend is selected")
	}

	if err := c.validateBlend(); err != nil {
		return err
	}

	if c.Performance.MaxConcurrentRecords < 1 {
		return fmt.Errorf("max_concurrent_records must be >= 1")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	validLevel := false
	for _, level := range validLevels {
		if c.Logging.Level == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console'")
	}

	return nil
}

// validateBlend checks the weight curve invariants: bounds inside [0,1],
// floor below ceiling, breakpoints sorted by count with non-decreasing
// weights inside [floor, ceiling].
func (c *Config) validateBlend() error {
	b := c.Blend

	if b.Floor < 0 || b.Ceiling > 1 {
		return fmt.Errorf("blend floor/ceiling must be within [0, 1]")
	}

	if b.Floor >= b.Ceiling {
		return fmt.Errorf("blend floor must be less than ceiling")
	}

	if len(b.Breakpoints) == 0 {
		return fmt.Errorf("blend breakpoints cannot be empty")
	}

	if !sort.SliceIsSorted(b.Breakpoints, func(i, j int) bool {
		return b.Breakpoints[i].Decisions < b.Breakpoints[j].Decisions
	}) {
		return fmt.Errorf("blend breakpoints must be sorted by decision count")
	}

	prev := b.Floor
	for _, bp := range b.Breakpoints {
		if bp.Decisions < 0 {
			return fmt.Errorf("blend breakpoint decision count cannot be negative")
		}
		if bp.Weight < prev {
			return fmt.Errorf("blend breakpoint weights must be non-decreasing")
		}
		if bp.Weight < b.Floor || bp.Weight > b.Ceiling {
			return fmt.Errorf("blend breakpoint weight %.2f outside [floor, ceiling]", bp.Weight)
		}
		prev = bp.Weight
	}

	return nil
}
