package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as "30s" in both TOML and
// YAML files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// Router identifies the router program and, optionally, the authority the
// daemon initialises it with on first start.
type Router struct {
	Program      string `toml:"Program" yaml:"program"`
	Authority    string `toml:"Authority" yaml:"authority"`
	FeeRateBps   uint16 `toml:"FeeRateBps" yaml:"fee_rate_bps"`
	FeeCollector string `toml:"FeeCollector" yaml:"fee_collector"`
}

type Vault struct {
	Program   string `toml:"Program" yaml:"program"`
	Authority string `toml:"Authority" yaml:"authority"`
	Asset     string `toml:"Asset" yaml:"asset"`
}

// Limits are the router-wide parameters. MaxSlippageBps is carried but not
// enforced.
type Limits struct {
	MaxFeeRateBps     uint16 `toml:"MaxFeeRateBps" yaml:"max_fee_rate_bps"`
	DefaultFeeRateBps uint16 `toml:"DefaultFeeRateBps" yaml:"default_fee_rate_bps"`
	MaxSlippageBps    uint16 `toml:"MaxSlippageBps" yaml:"max_slippage_bps"`
	MinSwapAmount     uint64 `toml:"MinSwapAmount" yaml:"min_swap_amount"`
}

// Venue binds a venue tag to the program identity presented in swaps.
// RateBps configures the reference settlement strategy of that venue and
// may not exceed par (10000).
type Venue struct {
	Tag     string `toml:"Tag" yaml:"tag"`
	Program string `toml:"Program" yaml:"program"`
	RateBps uint64 `toml:"RateBps" yaml:"rate_bps"`
}

type Auth struct {
	JWTSecret string   `toml:"JWTSecret" yaml:"jwt_secret"`
	Issuer    string   `toml:"Issuer" yaml:"issuer"`
	TokenTTL  Duration `toml:"TokenTTL" yaml:"token_ttl"`
}

// RateLimit buckets requests per client. X-Real-IP and X-Forwarded-For are
// only honoured from TrustedProxies (IPs or CIDRs).
type RateLimit struct {
	RequestsPerMinute int      `toml:"RequestsPerMinute" yaml:"requests_per_minute"`
	Burst             int      `toml:"Burst" yaml:"burst"`
	TrustedProxies    []string `toml:"TrustedProxies" yaml:"trusted_proxies"`
}

type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}
