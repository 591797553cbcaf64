package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ddbox/core/events"
	"ddbox/core/receipts"
	"ddbox/core/state"
	"ddbox/core/types"
	"ddbox/crypto"
	"ddbox/native/blindbox"
	"ddbox/observability"
	"ddbox/observability/logging"
	telemetry "ddbox/observability/otel"
	"ddbox/storage"
)

// ReceiptSink persists the outcome of every invocation.
type ReceiptSink interface {
	Record(ctx context.Context, entry receipts.Entry) error
}

// Invocation is a single execute call against the contract.
type Invocation struct {
	Caller  string
	Height  uint64
	Time    uint64
	TxIndex *uint32
	Funds   []types.Coin
	Msg     ExecuteMsg
}

// Result is returned for committed invocations.
type Result struct {
	InvocationID string              `json:"invocation_id"`
	Action       string              `json:"action"`
	Events       []types.Event       `json:"events"`
	Transfers    []types.Transfer    `json:"transfers"`
	Instructions []types.Instruction `json:"instructions"`
	Data         json.RawMessage     `json:"data,omitempty"`
	// Settlement is set for finalize.
	Settlement *blindbox.Settlement `json:"-"`

	minted uint64
}

// Host executes messages against one contract instance. Each invocation runs
// inside its own storage transaction.
type Host struct {
	db       storage.Database
	contract string
	receipts ReceiptSink
	logger   *slog.Logger
	metrics  *observability.BlindBoxMetrics
	tracer   trace.Tracer

	allowMigrate bool
}

// HostOption customises a Host.
type HostOption func(*Host)

// WithReceipts records every invocation, failed ones included, into sink.
func WithReceipts(sink ReceiptSink) HostOption {
	return func(h *Host) { h.receipts = sink }
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics replaces the default metrics registry. A nil registry disables
// metrics.
func WithMetrics(metrics *observability.BlindBoxMetrics) HostOption {
	return func(h *Host) { h.metrics = metrics }
}

// WithAllowMigrate tolerates an on-disk state version other than the one
// this binary writes.
func WithAllowMigrate() HostOption {
	return func(h *Host) { h.allowMigrate = true }
}

// NewHost binds a database to the contract address. The state version is
// stamped on first use.
func NewHost(db storage.Database, contract string, opts ...HostOption) (*Host, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	contract = strings.TrimSpace(contract)
	if err := crypto.ValidateAddress(contract); err != nil {
		return nil, fmt.Errorf("core: contract address: %w", err)
	}
	h := &Host{
		db:       db,
		contract: contract,
		logger:   slog.Default(),
		metrics:  observability.BlindBox(),
		tracer:   telemetry.Tracer(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if err := state.EnsureStateVersion(db, h.allowMigrate); err != nil {
		return nil, err
	}
	return h, nil
}

// Health reports whether committed state is readable.
func (h *Host) Health(context.Context) error {
	if _, _, err := state.NewManager(h.db).StateVersion(); err != nil {
		return fmt.Errorf("core: state unreadable: %w", err)
	}
	return nil
}

// Contract returns the contract address the host serves.
func (h *Host) Contract() string { return h.contract }

func (h *Host) engine(store storage.Store, emitter events.Emitter) *blindbox.Engine {
	engine := blindbox.NewEngine()
	engine.SetState(state.NewManager(store))
	engine.SetEmitter(emitter)
	return engine
}

// Execute runs inv atomically. On error nothing is written and no events are
// returned.
func (h *Host) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	action, err := inv.Msg.Action()
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ctx, span := h.tracer.Start(ctx, "blindbox."+action, trace.WithAttributes(
		attribute.String("blindbox.action", action),
		attribute.String("blindbox.invocation", id),
		attribute.Int64("blindbox.height", int64(inv.Height)),
	))
	defer span.End()

	start := time.Now()
	result, err := h.execute(id, action, inv)
	h.metrics.ObserveInvocation(action, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		h.observe(result)
	}
	h.log(id, action, inv, result, err)
	if h.receipts != nil {
		entry := receipts.Entry{
			InvocationID: id,
			Action:       action,
			Caller:       inv.Caller,
			Height:       inv.Height,
			Time:         inv.Time,
			Err:          err,
		}
		if result != nil {
			entry.Events = result.Events
			entry.Transfers = result.Transfers
			entry.Instructions = result.Instructions
		}
		if recErr := h.receipts.Record(ctx, entry); recErr != nil {
			h.logger.Warn("receipt not recorded",
				slog.String("invocation", id),
				slog.Any("error", recErr))
		}
	}
	return result, err
}

func (h *Host) execute(id, action string, inv Invocation) (*Result, error) {
	caller := strings.TrimSpace(inv.Caller)
	if verr := crypto.ValidateAddress(caller); verr != nil {
		return nil, fmt.Errorf("%w: caller: %v", blindbox.ErrInvalidAddress, verr)
	}
	tx, err := h.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Discard()

	recorder := events.NewRecorder()
	engine := h.engine(tx, recorder)
	env := types.Env{
		Caller:   caller,
		Height:   inv.Height,
		Time:     inv.Time,
		Contract: h.contract,
		TxIndex:  inv.TxIndex,
	}
	result := &Result{InvocationID: id, Action: action}
	data, err := h.dispatch(engine, env, inv, result)
	if err != nil {
		return nil, err
	}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("core: encode response: %w", err)
		}
		result.Data = payload
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	result.Events = recorder.Events()
	if result.Transfers == nil {
		result.Transfers = []types.Transfer{}
	}
	if result.Instructions == nil {
		result.Instructions = []types.Instruction{}
	}
	return result, nil
}

// DepositResponse is the data returned by a deposit.
type DepositResponse struct {
	Paid      types.Coin `json:"paid"`
	Minted    uint64     `json:"minted"`
	FirstID   uint64     `json:"first_id"`
	Principal string     `json:"principal"`
}

func (h *Host) dispatch(engine *blindbox.Engine, env types.Env, inv Invocation, result *Result) (any, error) {
	msg := inv.Msg
	switch {
	case msg.Create != nil:
		return engine.Create(env, blindbox.CreateParams{
			Scale:           msg.Create.Scale,
			BasePrice:       msg.Create.BasePrice,
			FirstPrizeCount: msg.Create.FirstPrizeCount,
			LedgerMode:      msg.Create.LedgerMode,
			ExternalLedger:  msg.Create.ExternalLedger,
		})
	case msg.SetPrice != nil:
		return nil, engine.SetPrice(env, msg.SetPrice.Price)
	case msg.SetPause != nil:
		return nil, engine.SetPause(env, msg.SetPause.Paused)
	case msg.SetWindow != nil:
		return nil, engine.SetWindow(env, msg.SetWindow.Window, msg.SetWindow.Bounds)
	case msg.SetPhase != nil:
		return nil, engine.SetPhase(env, msg.SetPhase.Phase)
	case msg.Migrate != nil:
		return engine.Migrate(env, msg.Migrate.Scale)
	case msg.RegisterExternalLedger != nil:
		return nil, engine.RegisterExternalLedger(env, msg.RegisterExternalLedger.Handle)
	case msg.Deposit != nil:
		receipt, err := engine.Deposit(env, inv.Funds)
		if err != nil {
			return nil, err
		}
		result.Instructions = receipt.Instructions
		result.minted = receipt.Minted
		return DepositResponse{
			Paid:      receipt.Paid,
			Minted:    receipt.Minted,
			FirstID:   receipt.FirstID,
			Principal: receipt.Principal.Dec(),
		}, nil
	case msg.Commit != nil:
		return nil, engine.Commit(env, msg.Commit.Commitment)
	case msg.Reveal != nil:
		return nil, engine.Reveal(env, msg.Reveal.Value, msg.Reveal.Salt)
	case msg.Finalize != nil:
		settlement, err := engine.Finalize(env)
		if err != nil {
			return nil, err
		}
		result.Settlement = settlement
		result.Transfers = settlement.Transfers
		return settlement, nil
	}
	instructions, err := h.dispatchOwnership(engine, env, msg)
	if err != nil {
		return nil, err
	}
	result.Instructions = instructions
	return nil, nil
}

func (h *Host) dispatchOwnership(engine *blindbox.Engine, env types.Env, msg ExecuteMsg) ([]types.Instruction, error) {
	switch {
	case msg.Transfer != nil:
		return engine.Transfer(env, msg.Transfer.Recipient, msg.Transfer.UnitID)
	case msg.Approve != nil:
		return engine.Approve(env, msg.Approve.Spender, msg.Approve.UnitID)
	case msg.Revoke != nil:
		return engine.Revoke(env, msg.Revoke.Spender, msg.Revoke.UnitID)
	case msg.ApproveAll != nil:
		return engine.ApproveAll(env, msg.ApproveAll.Operator)
	case msg.RevokeAll != nil:
		return engine.RevokeAll(env, msg.RevokeAll.Operator)
	}
	return nil, ErrInvalidMessage
}

func (h *Host) observe(result *Result) {
	if result == nil {
		return
	}
	for _, instr := range result.Instructions {
		h.metrics.RecordInstruction(instr.Action)
	}
	h.metrics.RecordMinted(result.minted)
	if s := result.Settlement; s != nil {
		h.metrics.RecordSettlement(len(s.Outcomes), s.Denom, len(s.Transfers))
	}
}

func (h *Host) log(id, action string, inv Invocation, result *Result, err error) {
	attrs := []any{
		slog.String("invocation", id),
		slog.String("action", action),
		slog.String("caller", inv.Caller),
		slog.Uint64("height", inv.Height),
	}
	if inv.Msg.Reveal != nil {
		attrs = append(attrs, logging.MaskField("salt", inv.Msg.Reveal.Salt))
	}
	if err != nil {
		attrs = append(attrs, slog.String("outcome", "error"), slog.Any("error", err))
		if errors.Is(err, blindbox.ErrUnauthorized) {
			h.logger.Warn("invocation rejected", attrs...)
			return
		}
		h.logger.Info("invocation failed", attrs...)
		return
	}
	attrs = append(attrs,
		slog.String("outcome", "success"),
		slog.Int("events", len(result.Events)),
		slog.Int("transfers", len(result.Transfers)),
	)
	h.logger.Info("invocation committed", attrs...)
}
