package blindbox

import (
	"encoding/json"
	"errors"
	"fmt"

	"ddbox/core/types"
)

// UnitLedger keeps unit ownership and authorizations. The internal variant
// mutates contract storage; the delegated variant turns every operation into
// an instruction for the registered external ledger.
type UnitLedger interface {
	// Ready reports whether units can be issued to this ledger.
	Ready(cfg *Config) error
	Mint(cfg *Config, owner string, firstID, count uint64) ([]types.Instruction, error)
	Transfer(cfg *Config, caller, recipient string, id uint64) ([]types.Instruction, error)
	Approve(cfg *Config, caller, spender string, id uint64) ([]types.Instruction, error)
	Revoke(cfg *Config, caller, spender string, id uint64) ([]types.Instruction, error)
	ApproveAll(cfg *Config, caller, operator string) ([]types.Instruction, error)
	RevokeAll(cfg *Config, caller, operator string) ([]types.Instruction, error)
}

type internalLedger struct {
	state engineState
}

func (internalLedger) Ready(*Config) error { return nil }

func (l internalLedger) Mint(_ *Config, owner string, firstID, count uint64) ([]types.Instruction, error) {
	for id := firstID; id < firstID+count; id++ {
		if err := l.state.BlindBoxPutUnit(&Unit{ID: id, Owner: owner}); err != nil {
			return nil, fmt.Errorf("blindbox engine: store unit %d: %w", id, err)
		}
	}
	return nil, nil
}

func (l internalLedger) unit(id uint64) (*Unit, error) {
	unit, ok, err := l.state.BlindBoxUnit(id)
	if err != nil {
		return nil, fmt.Errorf("blindbox engine: load unit %d: %w", id, err)
	}
	if !ok || unit == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnitNotFound, id)
	}
	return unit, nil
}

func (l internalLedger) Transfer(_ *Config, caller, recipient string, id uint64) ([]types.Instruction, error) {
	unit, err := l.unit(id)
	if err != nil {
		return nil, err
	}
	authorized := caller == unit.Owner || (unit.Approval != "" && caller == unit.Approval)
	if !authorized {
		operator, err := l.state.BlindBoxOperator(unit.Owner, caller)
		if err != nil {
			return nil, fmt.Errorf("blindbox engine: load operator: %w", err)
		}
		authorized = operator
	}
	if !authorized {
		return nil, ErrUnauthorized
	}
	unit.Owner = recipient
	unit.Approval = ""
	if err := l.state.BlindBoxPutUnit(unit); err != nil {
		return nil, fmt.Errorf("blindbox engine: store unit %d: %w", id, err)
	}
	return nil, nil
}

func (l internalLedger) Approve(_ *Config, caller, spender string, id uint64) ([]types.Instruction, error) {
	unit, err := l.unit(id)
	if err != nil {
		return nil, err
	}
	if unit.Owner != caller {
		return nil, ErrUnauthorized
	}
	unit.Approval = spender
	if err := l.state.BlindBoxPutUnit(unit); err != nil {
		return nil, fmt.Errorf("blindbox engine: store unit %d: %w", id, err)
	}
	return nil, nil
}

func (l internalLedger) Revoke(_ *Config, caller, spender string, id uint64) ([]types.Instruction, error) {
	unit, err := l.unit(id)
	if err != nil {
		return nil, err
	}
	if unit.Owner != caller {
		return nil, ErrUnauthorized
	}
	if unit.Approval != spender {
		return nil, errApprovalNotHeld
	}
	unit.Approval = ""
	if err := l.state.BlindBoxPutUnit(unit); err != nil {
		return nil, fmt.Errorf("blindbox engine: store unit %d: %w", id, err)
	}
	return nil, nil
}

func (l internalLedger) ApproveAll(_ *Config, caller, operator string) ([]types.Instruction, error) {
	if err := l.state.BlindBoxSetOperator(caller, operator, true); err != nil {
		return nil, fmt.Errorf("blindbox engine: store operator: %w", err)
	}
	return nil, nil
}

func (l internalLedger) RevokeAll(_ *Config, caller, operator string) ([]types.Instruction, error) {
	if err := l.state.BlindBoxSetOperator(caller, operator, false); err != nil {
		return nil, fmt.Errorf("blindbox engine: store operator: %w", err)
	}
	return nil, nil
}

type delegatedLedger struct{}

// Payloads forwarded to the external ledger.
type (
	UnitMetadata struct {
		Scale             string `json:"scale"`
		SeriesID          string `json:"series_id"`
		CollectionGroupID string `json:"collection_group_id"`
		SerialInSeries    uint64 `json:"serial_in_series"`
	}
	BatchMintItem struct {
		TokenID   uint64       `json:"token_id"`
		Owner     string       `json:"owner"`
		Extension UnitMetadata `json:"extension"`
	}
	BatchMintPayload struct {
		Mints []BatchMintItem `json:"mints"`
	}
	TransferPayload struct {
		Recipient string `json:"recipient"`
		TokenID   uint64 `json:"token_id"`
	}
	ApprovalPayload struct {
		Spender string `json:"spender"`
		TokenID uint64 `json:"token_id"`
	}
	OperatorPayload struct {
		Operator string `json:"operator"`
	}
)

const (
	ActionBatchMint  = "batch_mint"
	ActionTransfer   = "transfer_nft"
	ActionApprove    = "approve"
	ActionRevoke     = "revoke"
	ActionApproveAll = "approve_all"
	ActionRevokeAll  = "revoke_all"
)

// collectionGroupSize is the number of consecutive ids sharing a group label.
const collectionGroupSize = 1000

func (delegatedLedger) Ready(cfg *Config) error {
	if cfg.ExternalLedger == "" {
		return ErrLedgerNotConfigured
	}
	return nil
}

func forward(cfg *Config, action string, payload any) ([]types.Instruction, error) {
	if cfg.ExternalLedger == "" {
		return nil, ErrLedgerNotConfigured
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("blindbox engine: encode %s: %w", action, err)
	}
	return []types.Instruction{{Target: cfg.ExternalLedger, Action: action, Payload: raw}}, nil
}

func (delegatedLedger) Mint(cfg *Config, owner string, firstID, count uint64) ([]types.Instruction, error) {
	payload := BatchMintPayload{Mints: make([]BatchMintItem, 0, count)}
	for id := firstID; id < firstID+count; id++ {
		payload.Mints = append(payload.Mints, BatchMintItem{
			TokenID: id,
			Owner:   owner,
			Extension: UnitMetadata{
				Scale:             cfg.Scale.String(),
				SeriesID:          "blind_box_" + cfg.Scale.String(),
				CollectionGroupID: fmt.Sprintf("group_%d", id/collectionGroupSize),
				SerialInSeries:    id,
			},
		})
	}
	return forward(cfg, ActionBatchMint, payload)
}

func (delegatedLedger) Transfer(cfg *Config, _ string, recipient string, id uint64) ([]types.Instruction, error) {
	return forward(cfg, ActionTransfer, TransferPayload{Recipient: recipient, TokenID: id})
}

func (delegatedLedger) Approve(cfg *Config, _ string, spender string, id uint64) ([]types.Instruction, error) {
	return forward(cfg, ActionApprove, ApprovalPayload{Spender: spender, TokenID: id})
}

func (delegatedLedger) Revoke(cfg *Config, _ string, spender string, id uint64) ([]types.Instruction, error) {
	return forward(cfg, ActionRevoke, ApprovalPayload{Spender: spender, TokenID: id})
}

func (delegatedLedger) ApproveAll(cfg *Config, _ string, operator string) ([]types.Instruction, error) {
	return forward(cfg, ActionApproveAll, OperatorPayload{Operator: operator})
}

func (delegatedLedger) RevokeAll(cfg *Config, _ string, operator string) ([]types.Instruction, error) {
	return forward(cfg, ActionRevokeAll, OperatorPayload{Operator: operator})
}

// Transfer moves a unit to recipient.
func (e *Engine) Transfer(env types.Env, recipient string, id uint64) ([]types.Instruction, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	to, err := e.checkAddress(recipient)
	if err != nil {
		return nil, err
	}
	out, err := e.ledger(cfg).Transfer(cfg, env.Caller, to, id)
	if err != nil {
		return nil, err
	}
	e.emit(UnitTransferredEvent(id, env.Caller, to))
	return out, nil
}

// Approve grants spender the right to transfer a single unit.
func (e *Engine) Approve(env types.Env, spender string, id uint64) ([]types.Instruction, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	checked, err := e.checkAddress(spender)
	if err != nil {
		return nil, err
	}
	out, err := e.ledger(cfg).Approve(cfg, env.Caller, checked, id)
	if err != nil {
		return nil, err
	}
	e.emit(UnitApprovedEvent(id, checked))
	return out, nil
}

// Revoke withdraws a single-unit approval.
func (e *Engine) Revoke(env types.Env, spender string, id uint64) ([]types.Instruction, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	checked, err := e.checkAddress(spender)
	if err != nil {
		return nil, err
	}
	out, err := e.ledger(cfg).Revoke(cfg, env.Caller, checked, id)
	if errors.Is(err, errApprovalNotHeld) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.emit(UnitRevokedEvent(id, checked))
	return out, nil
}

// ApproveAll makes operator an operator for every unit the caller holds.
func (e *Engine) ApproveAll(env types.Env, operator string) ([]types.Instruction, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	checked, err := e.checkAddress(operator)
	if err != nil {
		return nil, err
	}
	out, err := e.ledger(cfg).ApproveAll(cfg, env.Caller, checked)
	if err != nil {
		return nil, err
	}
	e.emit(OperatorApprovedEvent(env.Caller, checked))
	return out, nil
}

// RevokeAll removes an operator previously granted by the caller.
func (e *Engine) RevokeAll(env types.Env, operator string) ([]types.Instruction, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	checked, err := e.checkAddress(operator)
	if err != nil {
		return nil, err
	}
	out, err := e.ledger(cfg).RevokeAll(cfg, env.Caller, checked)
	if err != nil {
		return nil, err
	}
	e.emit(OperatorRevokedEvent(env.Caller, checked))
	return out, nil
}
