package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"arbvault/core/genesis"
	"arbvault/crypto"
	"arbvault/native/router"
)

type Config struct {
	ListenAddress   string   `toml:"ListenAddress" yaml:"listen_address"`
	DataDir         string   `toml:"DataDir" yaml:"data_dir"`
	Environment     string   `toml:"Environment" yaml:"environment"`
	LogFile         string   `toml:"LogFile" yaml:"log_file"`
	LogLevel        string   `toml:"LogLevel" yaml:"log_level"`
	ShutdownTimeout Duration `toml:"ShutdownTimeout" yaml:"shutdown_timeout"`
	PausedModules   []string `toml:"PausedModules" yaml:"paused_modules"`

	Router    Router    `toml:"Router" yaml:"router"`
	Vault     Vault     `toml:"Vault" yaml:"vault"`
	Limits    Limits    `toml:"Limits" yaml:"limits"`
	Auth      Auth      `toml:"Auth" yaml:"auth"`
	RateLimit RateLimit `toml:"RateLimit" yaml:"rate_limit"`
	Telemetry Telemetry `toml:"Telemetry" yaml:"telemetry"`

	Venues  []Venue             `toml:"Venues" yaml:"venues"`
	Tokens  []genesis.TokenSpec `toml:"Tokens" yaml:"tokens"`
	Genesis []genesis.AllocSpec `toml:"Genesis" yaml:"genesis"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a freshly generated development configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{Limits: defaultLimits()}
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// defaultLimits seeds the decoder: limits absent from the file keep these
// values, while an explicit zero survives.
func defaultLimits() Limits {
	params := router.DefaultParams()
	return Limits{
		MaxFeeRateBps:     params.MaxFeeRateBps,
		DefaultFeeRateBps: params.DefaultFeeRateBps,
		MaxSlippageBps:    params.MaxSlippageBps,
		MinSwapAmount:     params.MinSwapAmount,
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":7080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./arbvault-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ShutdownTimeout.Duration <= 0 {
		cfg.ShutdownTimeout.Duration = 10 * time.Second
	}
	for i := range cfg.Venues {
		if cfg.Venues[i].RateBps == 0 {
			cfg.Venues[i].RateBps = router.DefaultRateBps
		}
	}
	if strings.TrimSpace(cfg.Vault.Asset) == "" {
		cfg.Vault.Asset = "USDC"
	}
	if strings.TrimSpace(cfg.Auth.Issuer) == "" {
		cfg.Auth.Issuer = "arbvault"
	}
	if cfg.Auth.TokenTTL.Duration <= 0 {
		cfg.Auth.TokenTTL.Duration = 24 * time.Hour
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = cfg.RateLimit.RequestsPerMinute / 10
		if cfg.RateLimit.Burst == 0 {
			cfg.RateLimit.Burst = 1
		}
	}
}

// createDefault creates and saves a development configuration with freshly
// generated program identities and JWT secret.
func createDefault(path string) (*Config, error) {
	identities := make([]string, 0, len(router.AllVenues)+3)
	for i := 0; i < len(router.AllVenues)+3; i++ {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		identities = append(identities, key.PubKey().Address().String())
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}

	authority := identities[2]
	cfg := &Config{
		ListenAddress: ":7080",
		DataDir:       "./arbvault-data",
		Environment:   "dev",
		Router:        Router{Program: identities[0], Authority: authority, FeeRateBps: router.DefaultParams().DefaultFeeRateBps},
		Vault:         Vault{Program: identities[1], Authority: authority, Asset: "USDC"},
		Limits:        defaultLimits(),
		Auth:          Auth{JWTSecret: hex.EncodeToString(secret)},
		Tokens: []genesis.TokenSpec{
			{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
			{Symbol: "SOL", Name: "Solana", Decimals: 9},
		},
		PausedModules: []string{},
	}
	for i, tag := range router.AllVenues {
		cfg.Venues = append(cfg.Venues, Venue{Tag: string(tag), Program: identities[3+i]})
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

// GenesisSpec returns the token registry and allocations applied to an
// empty state.
func (c *Config) GenesisSpec() *genesis.Spec {
	return &genesis.Spec{
		Tokens: append([]genesis.TokenSpec(nil), c.Tokens...),
		Alloc:  append([]genesis.AllocSpec(nil), c.Genesis...),
	}
}

func (c *Config) RouterParams() router.Params {
	return router.Params{
		MaxFeeRateBps:     c.Limits.MaxFeeRateBps,
		DefaultFeeRateBps: c.Limits.DefaultFeeRateBps,
		MaxSlippageBps:    c.Limits.MaxSlippageBps,
		MinSwapAmount:     c.Limits.MinSwapAmount,
	}
}

// VenueTable builds the authorization table and the per-venue reference
// strategies.
func (c *Config) VenueTable() (*router.VenueTable, map[router.VenueTag]router.Strategy, error) {
	programs := make(map[router.VenueTag]crypto.Address, len(c.Venues))
	strategies := make(map[router.VenueTag]router.Strategy, len(c.Venues))
	for _, venue := range c.Venues {
		tag, err := router.ParseVenueTag(venue.Tag)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := programs[tag]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate venue %s", router.ErrInvalidVenueTable, tag)
		}
		program, err := crypto.ParseAddress(venue.Program)
		if err != nil {
			return nil, nil, fmt.Errorf("venue %s program: %w", tag, err)
		}
		programs[tag] = program
		strategies[tag] = router.ConstantRate{RateBps: venue.RateBps}
	}
	table, err := router.NewVenueTable(programs)
	if err != nil {
		return nil, nil, err
	}
	return table, strategies, nil
}

// Identities are the parsed addresses of the router and vault sections.
type Identities struct {
	RouterProgram   crypto.Address
	RouterAuthority crypto.Address
	FeeCollector    crypto.Address
	VaultProgram    crypto.Address
	VaultAuthority  crypto.Address
}

// Identities parses the addresses of the router and vault sections. Optional
// addresses that are empty stay zero.
func (c *Config) Identities() (Identities, error) {
	var ids Identities
	fields := []struct {
		name     string
		raw      string
		required bool
		out      *crypto.Address
	}{
		{"Router.Program", c.Router.Program, true, &ids.RouterProgram},
		{"Router.Authority", c.Router.Authority, false, &ids.RouterAuthority},
		{"Router.FeeCollector", c.Router.FeeCollector, false, &ids.FeeCollector},
		{"Vault.Program", c.Vault.Program, true, &ids.VaultProgram},
		{"Vault.Authority", c.Vault.Authority, false, &ids.VaultAuthority},
	}
	for _, field := range fields {
		raw := strings.TrimSpace(field.raw)
		if raw == "" {
			if field.required {
				return ids, fmt.Errorf("%s must be set", field.name)
			}
			continue
		}
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return ids, fmt.Errorf("%s: %w", field.name, err)
		}
		*field.out = addr
	}
	return ids, nil
}
