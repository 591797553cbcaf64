package core

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ddbox/core/events"
	"ddbox/native/blindbox"
)

type (
	DepositResult struct {
		Address string `json:"address"`
		Amount  string `json:"amount"`
	}
	TierResult struct {
		Address string        `json:"address"`
		Tier    blindbox.Tier `json:"tier"`
	}
	OwnerResult struct {
		UnitID uint64 `json:"unit_id"`
		Owner  string `json:"owner"`
	}
	ApprovalResult struct {
		UnitID   uint64 `json:"unit_id"`
		Approval string `json:"approval,omitempty"`
	}
	OperatorStatusResult struct {
		Owner    string `json:"owner"`
		Operator string `json:"operator"`
		Approved bool   `json:"approved"`
	}
)

// Query answers a read-only message against committed state.
func (h *Host) Query(ctx context.Context, q QueryMsg) (json.RawMessage, error) {
	action, err := q.Action()
	if err != nil {
		return nil, err
	}
	_, span := h.tracer.Start(ctx, "blindbox.query."+action, trace.WithAttributes(
		attribute.String("blindbox.query", action),
	))
	defer span.End()

	out, err := h.query(q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("core: encode query response: %w", err)
	}
	return payload, nil
}

func (h *Host) query(q QueryMsg) (any, error) {
	engine := h.engine(h.db, events.NoopEmitter{})
	switch {
	case q.Config != nil:
		return engine.Config()
	case q.Version != nil:
		return engine.Version()
	case q.Deposit != nil:
		amount, err := engine.DepositOf(q.Deposit.Address)
		if err != nil {
			return nil, err
		}
		return DepositResult{Address: q.Deposit.Address, Amount: amount.Dec()}, nil
	case q.Tier != nil:
		tier, err := engine.TierOf(q.Tier.Address)
		if err != nil {
			return nil, err
		}
		return TierResult{Address: q.Tier.Address, Tier: tier}, nil
	case q.TierList != nil:
		return engine.TierList(q.TierList.Tier, q.TierList.StartAfter, q.TierList.Limit)
	case q.OwnerOf != nil:
		owner, err := engine.OwnerOf(q.OwnerOf.UnitID)
		if err != nil {
			return nil, err
		}
		return OwnerResult{UnitID: q.OwnerOf.UnitID, Owner: owner}, nil
	case q.UnitInfo != nil:
		return engine.UnitInfo(q.UnitInfo.UnitID)
	case q.Approval != nil:
		approval, err := engine.Approval(q.Approval.UnitID)
		if err != nil {
			return nil, err
		}
		return ApprovalResult{UnitID: q.Approval.UnitID, Approval: approval}, nil
	case q.IsApprovedForAll != nil:
		approved, err := engine.IsApprovedForAll(q.IsApprovedForAll.Owner, q.IsApprovedForAll.Operator)
		if err != nil {
			return nil, err
		}
		return OperatorStatusResult{
			Owner:    q.IsApprovedForAll.Owner,
			Operator: q.IsApprovedForAll.Operator,
			Approved: approved,
		}, nil
	case q.Units != nil:
		return engine.Units(q.Units.Owner, q.Units.StartAfter, q.Units.Limit)
	case q.AllUnits != nil:
		return engine.AllUnits(q.AllUnits.StartAfter, q.AllUnits.Limit)
	}
	return nil, ErrInvalidMessage
}
