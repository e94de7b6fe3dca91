package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"arbvault/core/state"
	"arbvault/crypto"
	"arbvault/native/common"
	"arbvault/native/router"
	"arbvault/native/vault"
	"arbvault/observability"
	telemetry "arbvault/observability/otel"
)

const outcomeCommitted = "committed"

// NodeConfig carries the identities and limits the modules are built with.
type NodeConfig struct {
	RouterProgram crypto.Address
	VaultProgram  crypto.Address
	Venues        *router.VenueTable
	Params        router.Params
	Strategies    map[router.VenueTag]router.Strategy
	PausedModules []string
}

// Node is the central controller, wiring the runtime and the router and
// vault modules together.
type Node struct {
	runtime *Runtime
	router  *router.Engine
	vault   *vault.Engine
	logger  *slog.Logger
	tracer  trace.Tracer
	calls   otelmetric.Int64Counter
	metrics *observability.RuntimeMetrics
}

func NewNode(runtime *Runtime, cfg NodeConfig, logger *slog.Logger) (*Node, error) {
	if runtime == nil {
		return nil, fmt.Errorf("node: runtime required")
	}
	if cfg.RouterProgram == cfg.VaultProgram {
		return nil, fmt.Errorf("node: router and vault must have distinct program identities")
	}
	routerEngine, err := router.NewEngine(cfg.RouterProgram, cfg.Venues, cfg.Params)
	if err != nil {
		return nil, err
	}
	for tag, strategy := range cfg.Strategies {
		routerEngine.SetStrategy(tag, strategy)
	}
	vaultEngine, err := vault.NewEngine(cfg.VaultProgram)
	if err != nil {
		return nil, err
	}
	vaultEngine.RegisterRouter(routerEngine)

	pauses := common.NewPausedSet(cfg.PausedModules...)
	routerEngine.SetPauses(pauses)
	vaultEngine.SetPauses(pauses)

	if logger == nil {
		logger = slog.Default()
	}
	calls, err := telemetry.Meter().Int64Counter("arbvault.node.calls",
		otelmetric.WithDescription("Entry point invocations by outcome"))
	if err != nil {
		return nil, fmt.Errorf("node: register call counter: %w", err)
	}
	return &Node{
		runtime: runtime,
		router:  routerEngine,
		vault:   vaultEngine,
		logger:  logger,
		tracer:  telemetry.Tracer(),
		calls:   calls,
		metrics: observability.Runtime(),
	}, nil
}

func (n *Node) Runtime() *Runtime { return n.runtime }

func (n *Node) Router() *router.Engine { return n.router }

func (n *Node) Vault() *vault.Engine { return n.vault }

// call wraps one entry point with a span, a log line and call metrics.
// run returns the head its call committed.
func (n *Node) call(ctx context.Context, entry string, attrs []attribute.KeyValue, run func(context.Context) (Head, error)) error {
	ctx, span := n.tracer.Start(ctx, entry, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	head, err := run(ctx)
	elapsed := time.Since(start)
	outcome := ErrorCode(err)
	n.metrics.ObserveCall(entry, outcome, elapsed)
	n.calls.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("entry", entry),
		attribute.String("outcome", outcome)))
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		n.logger.WarnContext(ctx, "call aborted",
			slog.String("entry", entry),
			slog.String("code", outcome),
			slog.Duration("duration", elapsed),
			slog.Any("error", err))
		return err
	}
	span.SetAttributes(attribute.Int64("height", int64(head.Height)))
	n.logger.InfoContext(ctx, "call committed",
		slog.String("entry", entry),
		slog.Uint64("height", head.Height),
		slog.String("root", head.Root.Hex()),
		slog.Duration("duration", elapsed))
	return nil
}

func signerAttr(signer crypto.Address) attribute.KeyValue {
	return attribute.String("signer", signer.String())
}

// InitializeRouter records authority, fee rate and optional fee collector.
func (n *Node) InitializeRouter(ctx context.Context, authority crypto.Address, feeRateBps uint16, feeCollector crypto.Address) (*router.RouterState, error) {
	var out *router.RouterState
	err := n.call(ctx, "router.initialize", []attribute.KeyValue{signerAttr(authority)}, func(ctx context.Context) (Head, error) {
		return n.runtime.Execute(ctx, []crypto.Address{authority}, func(tx *state.Tx) error {
			st, err := n.router.Initialize(tx, authority, feeRateBps, feeCollector)
			out = st
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) SetRouterFeeRate(ctx context.Context, caller crypto.Address, feeRateBps uint16) (*router.RouterState, error) {
	var out *router.RouterState
	err := n.call(ctx, "router.setFeeRate", []attribute.KeyValue{signerAttr(caller)}, func(ctx context.Context) (Head, error) {
		return n.runtime.Execute(ctx, []crypto.Address{caller}, func(tx *state.Tx) error {
			st, err := n.router.SetFeeRate(tx, caller, feeRateBps)
			out = st
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteSwaps settles swaps on behalf of signer as one atomic batch.
func (n *Node) ExecuteSwaps(ctx context.Context, signer crypto.Address, swaps []router.SwapInstruction) (*router.BatchResult, error) {
	var out *router.BatchResult
	attrs := []attribute.KeyValue{signerAttr(signer), attribute.Int("swaps", len(swaps))}
	err := n.call(ctx, "router.executeSwaps", attrs, func(ctx context.Context) (Head, error) {
		return n.runtime.Execute(ctx, []crypto.Address{signer}, func(tx *state.Tx) error {
			res, err := n.router.ExecuteBatch(tx, signer, swaps)
			out = res
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	recordBatch(swaps, out)
	return out, nil
}

func recordBatch(swaps []router.SwapInstruction, res *router.BatchResult) {
	if res == nil {
		return
	}
	metrics := observability.Router()
	for i, swap := range res.Swaps {
		token := ""
		if i < len(swaps) {
			token = swaps[i].TokenIn
		}
		metrics.RecordSwap(string(swap.Venue), token, swap.Fee)
	}
	metrics.RecordBatch(res.Volume, res.TotalVolume)
}

// EstimateRoute quotes every venue against committed state. The result is
// advisory.
func (n *Node) EstimateRoute(ctx context.Context, tokenIn, tokenOut string, amountIn uint64) (*router.RouteInfo, error) {
	var out *router.RouteInfo
	err := n.runtime.View(ctx, func(tx *state.Tx) error {
		info, err := n.router.EstimateRoute(tx, tokenIn, tokenOut, amountIn)
		out = info
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InitializeVault records authority, asset and the router the vault may
// delegate to. A zero router selects the router wired into this node.
func (n *Node) InitializeVault(ctx context.Context, authority, authorizedRouter crypto.Address, asset string) (*vault.VaultState, error) {
	if authorizedRouter.IsZero() {
		authorizedRouter = n.router.Program()
	}
	var out *vault.VaultState
	err := n.call(ctx, "vault.initialize", []attribute.KeyValue{signerAttr(authority)}, func(ctx context.Context) (Head, error) {
		return n.runtime.Execute(ctx, []crypto.Address{authority}, func(tx *state.Tx) error {
			st, err := n.vault.InitializeVault(tx, authority, authorizedRouter, asset)
			out = st
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) Deposit(ctx context.Context, owner crypto.Address, amount uint64) (*vault.DepositResult, error) {
	var out *vault.DepositResult
	var balance, total uint64
	err := n.call(ctx, "vault.deposit", []attribute.KeyValue{signerAttr(owner)}, func(ctx context.Context) (Head, error) {
		return n.runtime.Execute(ctx, []crypto.Address{owner}, func(tx *state.Tx) error {
			res, err := n.vault.Deposit(tx, owner, amount)
			if err != nil {
				return err
			}
			out = res
			balance, total, err = n.vault.Valuation(tx)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	metrics := observability.Vault()
	metrics.RecordDeposit()
	metrics.SetValuation(balance, total)
	return out, nil
}

func (n *Node) Withdraw(ctx context.Context, owner crypto.Address, shares uint64) (*vault.WithdrawResult, error) {
	var out *vault.WithdrawResult
	var balance, total uint64
	err := n.call(ctx, "vault.withdraw", []attribute.KeyValue{signerAttr(owner)}, func(ctx context.Context) (Head, error) {
		return n.runtime.Execute(ctx, []crypto.Address{owner}, func(tx *state.Tx) error {
			res, err := n.vault.Withdraw(tx, owner, shares)
			if err != nil {
				return err
			}
			out = res
			balance, total, err = n.vault.Valuation(tx)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	metrics := observability.Vault()
	metrics.RecordWithdrawal()
	metrics.SetValuation(balance, total)
	return out, nil
}

// ExecuteArbitrage runs swaps through routerProgram with the vault's funds
// and distributes the profit. Nothing is kept unless the vault gained at
// least minProfit.
func (n *Node) ExecuteArbitrage(ctx context.Context, executor, routerProgram crypto.Address, swaps []router.SwapInstruction, minProfit uint64) (*vault.ArbitrageResult, error) {
	var out *vault.ArbitrageResult
	var balance, total uint64
	attrs := []attribute.KeyValue{
		signerAttr(executor),
		attribute.String("router", routerProgram.String()),
		attribute.Int("swaps", len(swaps)),
	}
	err := n.call(ctx, "vault.executeArbitrage", attrs, func(ctx context.Context) (Head, error) {
		return n.runtime.Execute(ctx, []crypto.Address{executor}, func(tx *state.Tx) error {
			res, err := n.vault.ExecuteArbitrage(tx, executor, routerProgram, swaps, minProfit)
			if err != nil {
				return err
			}
			out = res
			balance, total, err = n.vault.Valuation(tx)
			return err
		})
	})
	metrics := observability.Vault()
	if err != nil {
		metrics.RecordArbitrage(ErrorCode(err), 0, 0)
		return nil, err
	}
	metrics.RecordArbitrage(outcomeCommitted, out.VaultProfit, out.ExecutorFee)
	metrics.SetValuation(balance, total)
	if out.Batch != nil {
		recordBatch(swaps, out.Batch)
	}
	return out, nil
}

func (n *Node) RouterState(ctx context.Context) (*router.RouterState, error) {
	var out *router.RouterState
	err := n.runtime.View(ctx, func(tx *state.Tx) error {
		st, err := n.router.State(tx)
		out = st
		return err
	})
	return out, err
}

func (n *Node) VaultState(ctx context.Context) (*vault.VaultState, error) {
	var out *vault.VaultState
	err := n.runtime.View(ctx, func(tx *state.Tx) error {
		st, err := n.vault.State(tx)
		out = st
		return err
	})
	return out, err
}

// VaultValuation returns the vault's asset balance and outstanding shares.
func (n *Node) VaultValuation(ctx context.Context) (balance, totalShares uint64, err error) {
	err = n.runtime.View(ctx, func(tx *state.Tx) error {
		var viewErr error
		balance, totalShares, viewErr = n.vault.Valuation(tx)
		return viewErr
	})
	return balance, totalShares, err
}

func (n *Node) Position(ctx context.Context, owner crypto.Address) (*vault.Position, error) {
	var out *vault.Position
	err := n.runtime.View(ctx, func(tx *state.Tx) error {
		pos, err := n.vault.Position(tx, owner)
		out = pos
		return err
	})
	return out, err
}

func (n *Node) Balance(ctx context.Context, addr crypto.Address, token string) (uint64, error) {
	var out uint64
	err := n.runtime.View(ctx, func(tx *state.Tx) error {
		balance, err := tx.Balance(addr, token)
		out = balance
		return err
	})
	return out, err
}

// Tokens lists the registered token symbols.
func (n *Node) Tokens(ctx context.Context) ([]string, error) {
	var out []string
	err := n.runtime.View(ctx, func(tx *state.Tx) error {
		list, err := tx.Manager().TokenList()
		out = list
		return err
	})
	return out, err
}
