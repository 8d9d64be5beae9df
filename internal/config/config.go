package config

import (
	"fmt"
	"math/big"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/punchamoorthee/vrfmint/internal/domain"
)

// DevelopmentEnvironments may run the local oracle with automatic fulfillment.
var DevelopmentEnvironments = []string{"development", "hardhat", "localhost", "test"}

type Config struct {
	DBSource string `envconfig:"DB_SOURCE"`
	Port     string `envconfig:"SERVER_PORT" default:"8080"`
	Env      string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	MintFee       string `envconfig:"MINT_FEE" default:"10000000000000000"`
	BaseURI       string `envconfig:"BASE_URI" default:"ipfs://"`
	BasicTokenURI string `envconfig:"BASIC_TOKEN_URI"`
	CatalogPath   string `envconfig:"CATALOG_PATH"`

	OracleAutoFulfill bool          `envconfig:"ORACLE_AUTO_FULFILL" default:"true"`
	OracleDelay       time.Duration `envconfig:"ORACLE_DELAY" default:"2s"`
	OracleNumWords    int           `envconfig:"ORACLE_NUM_WORDS" default:"1"`
	OracleSeed        string        `envconfig:"ORACLE_SEED"`
	// CallbackToken guards the fulfillment endpoint when set.
	CallbackToken string `envconfig:"ORACLE_CALLBACK_TOKEN"`

	MintRateLimit float64 `envconfig:"MINT_RATE_LIMIT" default:"50"`
	MintRateBurst int     `envconfig:"MINT_RATE_BURST" default:"100"`
}

// catalogFile is the on-disk layout of CATALOG_PATH.
type catalogFile struct {
	BaseURI string                `yaml:"base_uri"`
	Entries []domain.CatalogEntry `yaml:"entries"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("SERVER_PORT must not be empty")
	}
	if _, err := c.Fee(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.OracleAutoFulfill && !c.IsDevelopment() {
		return fmt.Errorf("ORACLE_AUTO_FULFILL is only allowed in development environments, got %q", c.Env)
	}
	if c.MintRateLimit < 0 || c.MintRateBurst < 0 {
		return fmt.Errorf("MINT_RATE_LIMIT and MINT_RATE_BURST must not be negative")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return slices.Contains(DevelopmentEnvironments, strings.ToLower(c.Env))
}

// Fee parses MINT_FEE as a non-negative integer amount.
func (c *Config) Fee() (*big.Int, error) {
	fee, ok := new(big.Int).SetString(strings.TrimSpace(c.MintFee), 10)
	if !ok || fee.Sign() < 0 {
		return nil, fmt.Errorf("MINT_FEE must be a non-negative integer, got %q", c.MintFee)
	}
	return fee, nil
}

// Catalog returns the catalog from CATALOG_PATH, or the default one.
// A base_uri in the file overrides BASE_URI.
func (c *Config) Catalog() (domain.Catalog, string, error) {
	if c.CatalogPath == "" {
		return domain.DefaultCatalog(), c.BaseURI, nil
	}
	data, err := os.ReadFile(c.CatalogPath)
	if err != nil {
		return nil, "", fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parse catalog %s: %w", c.CatalogPath, err)
	}
	catalog := domain.Catalog(f.Entries)
	if err := catalog.Validate(); err != nil {
		return nil, "", fmt.Errorf("catalog %s: %w", c.CatalogPath, err)
	}
	baseURI := c.BaseURI
	if f.BaseURI != "" {
		baseURI = f.BaseURI
	}
	return catalog, baseURI, nil
}

// NewLogger builds the process logger: text in development, JSON elsewhere.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if c.IsDevelopment() {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
