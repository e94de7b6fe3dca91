package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultURL = "http://127.0.0.1:7080"

// globals are resolved from flags preceding the command and from the
// environment.
type globals struct {
	url        string
	token      string
	signer     string
	configPath string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	g := globals{
		url:        envOr("VAULTD_URL", defaultURL),
		token:      strings.TrimSpace(os.Getenv("VAULTD_TOKEN")),
		configPath: envOr("VAULTD_CONFIG", "vaultd.toml"),
	}
	args, err := parseGlobals(args, &g)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	c := &client{baseURL: strings.TrimRight(g.url, "/"), globals: g}
	rest := args[1:]
	switch args[0] {
	case "token":
		return runToken(rest, g, stdout, stderr)
	case "router":
		return runRouter(c, rest, stdout, stderr)
	case "vault":
		return runVault(c, rest, stdout, stderr)
	case "position":
		return runPosition(c, rest, stdout, stderr)
	case "balance":
		return runBalance(c, rest, stdout, stderr)
	case "deposit":
		return runDeposit(c, rest, stdout, stderr)
	case "withdraw":
		return runWithdraw(c, rest, stdout, stderr)
	case "swap":
		return runSwap(c, rest, stdout, stderr)
	case "estimate":
		return runEstimate(c, rest, stdout, stderr)
	case "arbitrage":
		return runArbitrage(c, rest, stdout, stderr)
	case "events":
		return runEvents(c, rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// parseGlobals consumes --url, --token, --as and --config ahead of the
// command name.
func parseGlobals(args []string, g *globals) ([]string, error) {
	for len(args) > 0 && strings.HasPrefix(args[0], "--") {
		name, value, inline := strings.Cut(strings.TrimPrefix(args[0], "--"), "=")
		target := map[string]*string{
			"url":    &g.url,
			"token":  &g.token,
			"as":     &g.signer,
			"config": &g.configPath,
		}[name]
		if target == nil {
			return args, nil
		}
		if !inline {
			if len(args) < 2 {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[1]
			args = args[1:]
		}
		*target = strings.TrimSpace(value)
		args = args[1:]
	}
	return args, nil
}

func usage() string {
	return strings.TrimSpace(`
Usage: vault-cli [--url URL] [--token JWT | --as ADDRESS [--config PATH]] <command> [args]

Commands:
  token <address> [--ttl 24h]          mint a bearer token from the daemon's JWT secret
  router [init|fee] ...                show or administer the router
  vault [init] ...                     show or initialise the vault
  position <owner>                     shares held by owner
  balance <address> <token>            token balance of address
  deposit <amount>                     deposit into the vault as the signer
  withdraw <shares>                    burn shares for the proportional amount
  swap --file swaps.json | --venue ... execute a swap batch as the signer
  estimate <tokenIn> <tokenOut> <amount>
  arbitrage --file swaps.json [--min-profit N] [--router ADDRESS]
  events [--type T] [--after N] [--limit N]`)
}
