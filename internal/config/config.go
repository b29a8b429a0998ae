// Package config loads the dropefficiency.yaml settings file.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/dropefficiency/internal/database"
	"github.com/lawnchairsociety/dropefficiency/internal/efficiency"
)

// Config holds every setting of the tools. The logging section of the same
// file is read by the logger package.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Policy   PolicyConfig   `yaml:"policy"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Database DatabaseConfig `yaml:"database"`

	// Threshold is the minimum node efficiency for a node to be ranked.
	Threshold float64 `yaml:"threshold"`

	// Output lists the items printed in the terminal report.
	Output []string `yaml:"output"`
}

// PathsConfig says where files are read and written.
type PathsConfig struct {
	// Prefix is prepended to every file name, e.g. "fgo_".
	Prefix string `yaml:"prefix"`

	// DropsFile is the name of the scraped drop data file.
	DropsFile string `yaml:"drops_file"`

	// OutputDir holds the drops file and the exported results.
	OutputDir string `yaml:"output_dir"`
}

// PolicyConfig holds the item inclusion lists.
type PolicyConfig struct {
	// Allow, when non-empty, restricts the computation to these items and
	// Deny is ignored.
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`

	// DenyClassVariants adds every class-specific gem, gold blaze, piece and
	// monument to Deny. Those items have very high APDs and would dominate
	// every node that drops them.
	DenyClassVariants bool `yaml:"deny_class_variants"`
}

// FetchConfig holds wiki scraping settings.
type FetchConfig struct {
	BaseURL           string `yaml:"base_url"`
	UserAgent         string `yaml:"user_agent"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`

	// StartSection and EndSection are the grouping-header ids on the free
	// quest index that bound the scraped sections. The end section is excluded.
	StartSection string `yaml:"start_section"`
	EndSection   string `yaml:"end_section"`
}

// DatabaseConfig selects the run archive backend.
type DatabaseConfig struct {
	Driver     string         `yaml:"driver"`
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// Class-specific material families excluded by DenyClassVariants.
var (
	classes       = []string{"Saber", "Caster", "Lancer", "Archer", "Assassin", "Rider", "Berserker"}
	classPrefixes = []string{"Blaze of Wisdom - Gold", "Gem of", "Magic Gem of", "Secret Gem of"}
	classSuffixes = []string{"Piece", "Monument"}
)

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DropsFile: "drops.json",
			OutputDir: ".",
		},
		Policy: PolicyConfig{
			DenyClassVariants: true,
		},
		Fetch: FetchConfig{
			BaseURL:           "https://gamepress.gg/grandorder",
			UserAgent:         "Mozilla/5.0",
			RequestsPerMinute: 60,
			TimeoutSeconds:    30,
			StartSection:      "1776", // Fuyuki
			EndSection:        "7616", // Lostbelt 3
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "data/dropefficiency.db",
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Threshold: efficiency.DefaultThreshold,
		Output:    []string{"Eternal Ice", "Void's Dust", "Giant's Ring", "Aurora Steel"},
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DROPEFF_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid DROPEFF_THRESHOLD %q: %w", v, err)
		}
		c.Threshold = threshold
	}
	if v := os.Getenv("DROPEFF_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DROPEFF_DB_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("DROPEFF_OUTPUT_DIR"); v != "" {
		c.Paths.OutputDir = v
	}
	return nil
}

// Validate checks the values the tools cannot work around.
func (c *Config) Validate() error {
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("threshold must be a finite number, got %v", c.Threshold)
	}
	switch database.DialectType(c.Database.Driver) {
	case database.DialectSQLite, database.DialectPostgres:
	default:
		return fmt.Errorf("unknown database driver %q (want sqlite or postgres)", c.Database.Driver)
	}
	if c.Fetch.RequestsPerMinute < 0 {
		return fmt.Errorf("fetch.requests_per_minute must not be negative, got %d", c.Fetch.RequestsPerMinute)
	}
	return nil
}

// DropsPath is the location of the drop data file.
func (c *Config) DropsPath() string {
	return filepath.Join(c.Paths.OutputDir, c.Paths.Prefix+c.Paths.DropsFile)
}

// DenyList returns the configured deny list plus, when enabled, every
// class-specific variant.
func (c *Config) DenyList() []string {
	deny := append([]string(nil), c.Policy.Deny...)
	if !c.Policy.DenyClassVariants {
		return deny
	}
	for _, prefix := range classPrefixes {
		for _, class := range classes {
			deny = append(deny, prefix+" "+class)
		}
	}
	for _, suffix := range classSuffixes {
		for _, class := range classes {
			deny = append(deny, class+" "+suffix)
		}
	}
	return deny
}

// ItemPolicy builds the engine's inclusion policy.
func (c *Config) ItemPolicy() efficiency.Policy {
	return efficiency.NewPolicy(c.Policy.Allow, c.DenyList())
}

// Options builds the engine options for one run.
func (c *Config) Options() efficiency.Options {
	return efficiency.Options{
		Policy:    c.ItemPolicy(),
		Threshold: c.Threshold,
	}
}

// FetchTimeout is the per-request HTTP timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// DatabaseConfig maps the archive settings onto the database package.
func (c *Config) DatabaseConfig() database.Config {
	if database.DialectType(c.Database.Driver) != database.DialectPostgres {
		return database.DefaultConfig(c.Database.SQLitePath)
	}

	pg := database.DefaultPostgresConfig()
	p := c.Database.Postgres
	if p.Host != "" {
		pg.Host = p.Host
	}
	if p.Port != 0 {
		pg.Port = p.Port
	}
	if p.SSLMode != "" {
		pg.SSLMode = p.SSLMode
	}
	pg.User = p.User
	pg.Password = p.Password
	pg.Database = p.Database

	return database.Config{
		Driver:   string(database.DialectPostgres),
		Postgres: pg,
	}
}
