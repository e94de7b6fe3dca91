package config

import (
	"fmt"
	"net"
	"strings"

	"arbvault/native/common"
	"arbvault/native/router"
	"arbvault/native/vault"
)

// MinJWTSecretLength is the shortest HS256 secret accepted.
const MinJWTSecretLength = 16

var knownModules = map[string]bool{
	router.ModuleName: true,
	vault.ModuleName:  true,
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := c.RouterParams().Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if c.Router.FeeRateBps > c.Limits.MaxFeeRateBps {
		return fmt.Errorf("router: FeeRateBps %d exceeds MaxFeeRateBps %d", c.Router.FeeRateBps, c.Limits.MaxFeeRateBps)
	}

	ids, err := c.Identities()
	if err != nil {
		return err
	}
	if ids.RouterProgram == ids.VaultProgram {
		return fmt.Errorf("router and vault programs must differ")
	}
	table, _, err := c.VenueTable()
	if err != nil {
		return fmt.Errorf("venues: %w", err)
	}
	for _, entry := range table.Entries() {
		if entry.Program == ids.RouterProgram || entry.Program == ids.VaultProgram {
			return fmt.Errorf("venues: %s reuses a module program identity", entry.Tag)
		}
	}
	for _, venue := range c.Venues {
		if venue.RateBps > common.BasisPoints {
			return fmt.Errorf("venues: %s RateBps %d exceeds %d", venue.Tag, venue.RateBps, common.BasisPoints)
		}
	}

	spec := c.GenesisSpec()
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if len(spec.Tokens) > 0 && !declaresToken(c, c.Vault.Asset) {
		return fmt.Errorf("vault: asset %q is not a declared token", c.Vault.Asset)
	}

	for _, module := range c.PausedModules {
		if !knownModules[strings.ToLower(strings.TrimSpace(module))] {
			return fmt.Errorf("PausedModules: unknown module %q", module)
		}
	}

	if len(strings.TrimSpace(c.Auth.JWTSecret)) < MinJWTSecretLength {
		return fmt.Errorf("auth: JWTSecret must be at least %d characters", MinJWTSecretLength)
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit: values must not be negative")
	}
	for _, proxy := range c.RateLimit.TrustedProxies {
		if !validProxy(strings.TrimSpace(proxy)) {
			return fmt.Errorf("rate limit: invalid trusted proxy %q", proxy)
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	return nil
}

func validProxy(entry string) bool {
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		return err == nil
	}
	return net.ParseIP(entry) != nil
}

func declaresToken(c *Config, symbol string) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, token := range c.Tokens {
		if strings.ToUpper(strings.TrimSpace(token.Symbol)) == symbol {
			return true
		}
	}
	return false
}

// Paused returns the normalised module names listed in PausedModules.
func (c *Config) Paused() []string {
	out := make([]string, 0, len(c.PausedModules))
	for _, module := range c.PausedModules {
		if trimmed := strings.ToLower(strings.TrimSpace(module)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
