// Package config loads IdeaForge configuration from a TOML file, applying
// defaults for anything unset. The feature-cost table lives here: costs are
// static configuration read before debiting, never computed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all service configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Store     StoreConfig     `toml:"store"`
	Generator GeneratorConfig `toml:"generator"`
	Retry     RetryConfig     `toml:"retry"`
	Credits   CreditsConfig   `toml:"credits"`
	Features  []FeatureConfig `toml:"features"`
}

// APIConfig controls the HTTP server.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
	CORSOrigin     string `toml:"cors_origin"`
}

// Addr returns the listen address.
func (a APIConfig) Addr() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// StoreConfig controls SQLite persistence.
type StoreConfig struct {
	Path string `toml:"path"` // database file; empty means <home>/ideaforge.db
}

// GeneratorConfig controls the remote generation endpoint client.
type GeneratorConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
	Stub    bool     `toml:"stub"` // use the built-in stub generator (dev/test)
}

// RetryConfig bounds the generation retry loop.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	Delay       duration `toml:"delay"`
}

// CreditsConfig controls credit accounting.
type CreditsConfig struct {
	SignupGrant int64 `toml:"signup_grant"` // credits granted to a new account
}

// FeatureConfig declares one generation feature and its credit cost.
type FeatureConfig struct {
	Name       string `toml:"name"`
	Title      string `toml:"title"`
	Cost       int64  `toml:"cost"`
	PayloadKey string `toml:"payload_key"`
}

// duration wraps time.Duration for TOML string parsing ("2s", "90s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8432,
			MetricsEnabled: true,
			CORSOrigin:     "*",
		},
		Store: StoreConfig{},
		Generator: GeneratorConfig{
			BaseURL: "https://api.ideaforge.dev/v1",
			Timeout: duration{90 * time.Second},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delay:       duration{2 * time.Second},
		},
		Credits: CreditsConfig{
			SignupGrant: 10,
		},
		Features: DefaultFeatures(),
	}
}

// DefaultFeatures returns the built-in feature catalog with credit costs.
func DefaultFeatures() []FeatureConfig {
	return []FeatureConfig{
		{Name: "market_analysis", Title: "Market Analysis", Cost: 2, PayloadKey: "market_analysis"},
		{Name: "business_model_canvas", Title: "Business Model Canvas", Cost: 2, PayloadKey: "canvas"},
		{Name: "pitch_deck", Title: "Pitch Deck", Cost: 3, PayloadKey: "slides"},
		{Name: "financial_analysis", Title: "Financial Analysis", Cost: 3, PayloadKey: "financials"},
		{Name: "seo_plan", Title: "SEO Plan", Cost: 2, PayloadKey: "seo_plan"},
		{Name: "swot_analysis", Title: "SWOT Analysis", Cost: 1, PayloadKey: "swot"},
		{Name: "competitor_scan", Title: "Competitor Scan", Cost: 2, PayloadKey: "competitors"},
		{Name: "brand_identity", Title: "Brand Identity", Cost: 2, PayloadKey: "brand"},
		{Name: "marketing_plan", Title: "Marketing Plan", Cost: 2, PayloadKey: "marketing_plan"},
		{Name: "legal_checklist", Title: "Legal Checklist", Cost: 1, PayloadKey: "checklist"},
		{Name: "go_to_market", Title: "Go-To-Market Strategy", Cost: 2, PayloadKey: "gtm"},
		{Name: "customer_personas", Title: "Customer Personas", Cost: 1, PayloadKey: "personas"},
		{Name: "pricing_strategy", Title: "Pricing Strategy", Cost: 2, PayloadKey: "pricing"},
		{Name: "risk_assessment", Title: "Risk Assessment", Cost: 1, PayloadKey: "risks"},
		{Name: "elevator_pitch", Title: "Elevator Pitch", Cost: 1, PayloadKey: "pitch"},
		{Name: "naming_ideas", Title: "Naming Ideas", Cost: 1, PayloadKey: "names"},
		{Name: "landing_page_copy", Title: "Landing Page Copy", Cost: 2, PayloadKey: "copy"},
		{Name: "investor_faq", Title: "Investor FAQ", Cost: 2, PayloadKey: "faq"},
		{Name: "mvp_roadmap", Title: "MVP Roadmap", Cost: 2, PayloadKey: "roadmap"},
		{Name: "growth_experiments", Title: "Growth Experiments", Cost: 2, PayloadKey: "experiments"},
	}
}

// Load reads the config file at path, falling back to defaults for unset
// values. A missing file is not an error — defaults are returned.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	seen := make(map[string]bool, len(c.Features))
	for _, f := range c.Features {
		if f.Name == "" {
			return fmt.Errorf("feature with empty name")
		}
		if f.Cost <= 0 {
			return fmt.Errorf("feature %s: cost must be a positive integer, got %d", f.Name, f.Cost)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate feature %s", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Home(), "config.toml")
}

// Home returns the IdeaForge home directory ($IDEAFORGE_HOME or ~/.ideaforge).
func Home() string {
	if env := os.Getenv("IDEAFORGE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ideaforge")
}

// DBPath resolves the SQLite database path.
func (c Config) DBPath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(Home(), "ideaforge.db")
}

// FeatureTable builds the name-indexed cost table the orchestrator reads
// before debiting.
func (c Config) FeatureTable() map[string]FeatureConfig {
	table := make(map[string]FeatureConfig, len(c.Features))
	for _, f := range c.Features {
		table[f.Name] = f
	}
	return table
}
