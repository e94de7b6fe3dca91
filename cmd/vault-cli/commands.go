package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"arbvault/crypto"
	"arbvault/native/router"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}

func parseAmount(raw, name string) (uint64, error) {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned integer", name)
	}
	return value, nil
}

func runToken(args []string, g globals, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	ttl := fs.Duration("ttl", 0, "token lifetime (defaults to the configured TokenTTL)")
	if len(args) == 0 {
		return printError(stderr, "token requires an address")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	token, err := mintToken(g.configPath, args[0], *ttl)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runRouter(c *client, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		raw, err := c.do("GET", "/v1/router", nil, false)
		return finish(stdout, stderr, raw, err)
	}
	switch args[0] {
	case "init":
		fs := newFlagSet("router init", stderr)
		feeBps := fs.Uint("fee-bps", 30, "fee rate in basis points")
		collector := fs.String("fee-collector", "", "optional fee collector address")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if *feeBps > 10_000 {
			return printError(stderr, "--fee-bps must be <= 10000")
		}
		body := map[string]interface{}{"feeRateBps": *feeBps}
		if *collector != "" {
			if _, err := crypto.ParseAddress(*collector); err != nil {
				return printError(stderr, "--fee-collector: "+err.Error())
			}
			body["feeCollector"] = *collector
		}
		raw, err := c.do("POST", "/v1/router/init", body, true)
		return finish(stdout, stderr, raw, err)
	case "fee":
		fs := newFlagSet("router fee", stderr)
		feeBps := fs.Uint("bps", 0, "new fee rate in basis points")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if *feeBps > 10_000 {
			return printError(stderr, "--bps must be <= 10000")
		}
		raw, err := c.do("POST", "/v1/router/fee", map[string]interface{}{"feeRateBps": *feeBps}, true)
		return finish(stdout, stderr, raw, err)
	default:
		return printError(stderr, "unknown router subcommand: "+args[0])
	}
}

func runVault(c *client, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		raw, err := c.do("GET", "/v1/vault", nil, false)
		return finish(stdout, stderr, raw, err)
	}
	if args[0] != "init" {
		return printError(stderr, "unknown vault subcommand: "+args[0])
	}
	fs := newFlagSet("vault init", stderr)
	asset := fs.String("asset", "USDC", "asset the vault pools")
	routerAddr := fs.String("router", "", "authorized router program (defaults to the daemon's router)")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	body := map[string]interface{}{"asset": *asset}
	if *routerAddr != "" {
		if _, err := crypto.ParseAddress(*routerAddr); err != nil {
			return printError(stderr, "--router: "+err.Error())
		}
		body["router"] = *routerAddr
	}
	raw, err := c.do("POST", "/v1/vault/init", body, true)
	return finish(stdout, stderr, raw, err)
}

func runPosition(c *client, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		return printError(stderr, "position requires an owner address")
	}
	raw, err := c.do("GET", "/v1/vault/positions/"+url.PathEscape(args[0]), nil, false)
	return finish(stdout, stderr, raw, err)
}

func runBalance(c *client, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		return printError(stderr, "balance requires an address and a token")
	}
	raw, err := c.do("GET", "/v1/balances/"+url.PathEscape(args[0])+"/"+url.PathEscape(args[1]), nil, false)
	return finish(stdout, stderr, raw, err)
}

func runDeposit(c *client, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		return printError(stderr, "deposit requires an amount")
	}
	amount, err := parseAmount(args[0], "amount")
	if err != nil {
		return printError(stderr, err.Error())
	}
	raw, err := c.do("POST", "/v1/vault/deposit", map[string]uint64{"amount": amount}, true)
	return finish(stdout, stderr, raw, err)
}

func runWithdraw(c *client, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		return printError(stderr, "withdraw requires a share count")
	}
	shares, err := parseAmount(args[0], "shares")
	if err != nil {
		return printError(stderr, err.Error())
	}
	raw, err := c.do("POST", "/v1/vault/withdraw", map[string]uint64{"shares": shares}, true)
	return finish(stdout, stderr, raw, err)
}

// swapFlags reads a batch either from a JSON file or from single-swap flags.
type swapFlags struct {
	file     *string
	venue    *string
	program  *string
	pool     *string
	tokenIn  *string
	tokenOut *string
	amount   *uint64
	minOut   *uint64
}

func registerSwapFlags(fs *flag.FlagSet) swapFlags {
	return swapFlags{
		file:     fs.String("file", "", "JSON file holding an array of swap instructions"),
		venue:    fs.String("venue", "", "venue tag"),
		program:  fs.String("program", "", "venue program address"),
		pool:     fs.String("pool", "", "pool address"),
		tokenIn:  fs.String("in", "", "input token"),
		tokenOut: fs.String("out", "", "output token"),
		amount:   fs.Uint64("amount", 0, "input amount"),
		minOut:   fs.Uint64("min-out", 0, "minimum acceptable output"),
	}
}

func (f swapFlags) batch() ([]router.SwapInstruction, error) {
	if *f.file != "" {
		data, err := os.ReadFile(*f.file)
		if err != nil {
			return nil, err
		}
		var swaps []router.SwapInstruction
		if err := json.Unmarshal(data, &swaps); err != nil {
			return nil, fmt.Errorf("decode %s: %w", *f.file, err)
		}
		return swaps, nil
	}
	if *f.venue == "" {
		return nil, fmt.Errorf("--file or --venue is required")
	}
	tag, err := router.ParseVenueTag(*f.venue)
	if err != nil {
		return nil, err
	}
	program, err := crypto.ParseAddress(*f.program)
	if err != nil {
		return nil, fmt.Errorf("--program: %w", err)
	}
	pool, err := crypto.ParseAddress(*f.pool)
	if err != nil {
		return nil, fmt.Errorf("--pool: %w", err)
	}
	return []router.SwapInstruction{{
		Venue:            tag,
		VenueProgram:     program,
		Pool:             pool,
		TokenIn:          *f.tokenIn,
		TokenOut:         *f.tokenOut,
		AmountIn:         *f.amount,
		MinimumAmountOut: *f.minOut,
	}}, nil
}

func runSwap(c *client, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("swap", stderr)
	sf := registerSwapFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	swaps, err := sf.batch()
	if err != nil {
		return printError(stderr, err.Error())
	}
	raw, err := c.do("POST", "/v1/router/swaps", map[string]interface{}{"swaps": swaps}, true)
	return finish(stdout, stderr, raw, err)
}

func runEstimate(c *client, args []string, stdout, stderr io.Writer) int {
	if len(args) != 3 {
		return printError(stderr, "estimate requires tokenIn, tokenOut and amount")
	}
	amount, err := parseAmount(args[2], "amount")
	if err != nil {
		return printError(stderr, err.Error())
	}
	body := map[string]interface{}{"tokenIn": args[0], "tokenOut": args[1], "amountIn": amount}
	raw, err := c.do("POST", "/v1/router/estimate", body, false)
	return finish(stdout, stderr, raw, err)
}

func runArbitrage(c *client, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("arbitrage", stderr)
	sf := registerSwapFlags(fs)
	minProfit := fs.Uint64("min-profit", 0, "abort unless the vault gains at least this much")
	routerAddr := fs.String("router", "", "router program (defaults to the daemon's router)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	swaps, err := sf.batch()
	if err != nil {
		return printError(stderr, err.Error())
	}
	body := map[string]interface{}{"swaps": swaps, "minProfit": *minProfit}
	if *routerAddr != "" {
		if _, err := crypto.ParseAddress(*routerAddr); err != nil {
			return printError(stderr, "--router: "+err.Error())
		}
		body["router"] = *routerAddr
	}
	raw, err := c.do("POST", "/v1/vault/arbitrage", body, true)
	return finish(stdout, stderr, raw, err)
}

func runEvents(c *client, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	eventType := fs.String("type", "", "only events of this type")
	after := fs.Uint64("after", 0, "only events after this sequence")
	limit := fs.Int("limit", 0, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	query := url.Values{}
	if *eventType != "" {
		query.Set("type", *eventType)
	}
	if *after > 0 {
		query.Set("after", strconv.FormatUint(*after, 10))
	}
	if *limit > 0 {
		query.Set("limit", strconv.Itoa(*limit))
	}
	path := "/v1/events"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	raw, err := c.do("GET", path, nil, false)
	return finish(stdout, stderr, raw, err)
}
