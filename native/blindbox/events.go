package blindbox

import (
	"strconv"

	"ddbox/core/events"
	"ddbox/core/types"
)

const (
	EventTypeCreated          = "blindbox.created"
	EventTypePriceUpdated     = "blindbox.price.updated"
	EventTypePauseUpdated     = "blindbox.pause.updated"
	EventTypeWindowUpdated    = "blindbox.window.updated"
	EventTypePhaseUpdated     = "blindbox.phase.updated"
	EventTypeMigrated         = "blindbox.migrated"
	EventTypeLedgerRegistered = "blindbox.ledger.registered"
	EventTypeDeposit          = "blindbox.deposit"
	EventTypeCommitted        = "blindbox.committed"
	EventTypeRevealed         = "blindbox.revealed"
	EventTypeFinalized        = "blindbox.finalized"
	EventTypeUnitTransferred  = "blindbox.unit.transferred"
	EventTypeUnitApproved     = "blindbox.unit.approved"
	EventTypeUnitRevoked      = "blindbox.unit.revoked"
	EventTypeOperatorApproved = "blindbox.operator.approved"
	EventTypeOperatorRevoked  = "blindbox.operator.revoked"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func CreatedEvent(cfg *Config) *types.Event {
	return &types.Event{
		Type: EventTypeCreated,
		Attributes: map[string]string{
			"owner":           cfg.Owner,
			"scale":           cfg.Scale.String(),
			"totalSupply":     strconv.FormatUint(cfg.TotalSupply, 10),
			"basePrice":       cfg.BasePrice.String(),
			"firstPrizeCount": strconv.FormatUint(uint64(cfg.FirstPrizeCount), 10),
			"ledger":          cfg.LedgerMode.String(),
		},
	}
}

func PriceUpdatedEvent(price types.Coin) *types.Event {
	return &types.Event{
		Type:       EventTypePriceUpdated,
		Attributes: map[string]string{"basePrice": price.String()},
	}
}

func PauseUpdatedEvent(paused bool) *types.Event {
	return &types.Event{
		Type:       EventTypePauseUpdated,
		Attributes: map[string]string{"paused": strconv.FormatBool(paused)},
	}
}

func WindowUpdatedEvent(kind WindowKind, w PhaseWindow) *types.Event {
	attrs := map[string]string{"window": kind.String()}
	put := func(key string, v *uint64) {
		if v != nil {
			attrs[key] = strconv.FormatUint(*v, 10)
		}
	}
	put("startHeight", w.StartHeight)
	put("endHeight", w.EndHeight)
	put("startTime", w.StartTime)
	put("endTime", w.EndTime)
	return &types.Event{Type: EventTypeWindowUpdated, Attributes: attrs}
}

func PhaseUpdatedEvent(from, to Phase) *types.Event {
	return &types.Event{
		Type:       EventTypePhaseUpdated,
		Attributes: map[string]string{"from": from.String(), "to": to.String()},
	}
}

func MigratedEvent(from, to Scale, totalSupply uint64) *types.Event {
	return &types.Event{
		Type: EventTypeMigrated,
		Attributes: map[string]string{
			"from":        from.String(),
			"scale":       to.String(),
			"totalSupply": strconv.FormatUint(totalSupply, 10),
		},
	}
}

func LedgerRegisteredEvent(handle string) *types.Event {
	return &types.Event{
		Type:       EventTypeLedgerRegistered,
		Attributes: map[string]string{"ledger": handle},
	}
}

// DepositEvent reports the full paid amount and how many units were issued.
func DepositEvent(from string, amount types.Coin, minted, firstID uint64) *types.Event {
	return &types.Event{
		Type: EventTypeDeposit,
		Attributes: map[string]string{
			"from":    from,
			"amount":  amount.String(),
			"minted":  strconv.FormatUint(minted, 10),
			"firstId": strconv.FormatUint(firstID, 10),
		},
	}
}

func CommittedEvent(from string) *types.Event {
	return &types.Event{Type: EventTypeCommitted, Attributes: map[string]string{"from": from}}
}

func RevealedEvent(from string) *types.Event {
	return &types.Event{Type: EventTypeRevealed, Attributes: map[string]string{"from": from}}
}

// FinalizedEvent summarises a settlement run. note is empty unless the run
// had nothing to settle.
func FinalizedEvent(runID string, voters, transfers int, note string) *types.Event {
	attrs := map[string]string{
		"runId":     runID,
		"voters":    strconv.Itoa(voters),
		"transfers": strconv.Itoa(transfers),
	}
	if note != "" {
		attrs["note"] = note
	}
	return &types.Event{Type: EventTypeFinalized, Attributes: attrs}
}

func UnitTransferredEvent(id uint64, from, to string) *types.Event {
	return &types.Event{
		Type: EventTypeUnitTransferred,
		Attributes: map[string]string{
			"unitId": strconv.FormatUint(id, 10),
			"from":   from,
			"to":     to,
		},
	}
}

func UnitApprovedEvent(id uint64, spender string) *types.Event {
	return &types.Event{
		Type:       EventTypeUnitApproved,
		Attributes: map[string]string{"unitId": strconv.FormatUint(id, 10), "spender": spender},
	}
}

func UnitRevokedEvent(id uint64, spender string) *types.Event {
	return &types.Event{
		Type:       EventTypeUnitRevoked,
		Attributes: map[string]string{"unitId": strconv.FormatUint(id, 10), "spender": spender},
	}
}

func OperatorApprovedEvent(owner, operator string) *types.Event {
	return &types.Event{
		Type:       EventTypeOperatorApproved,
		Attributes: map[string]string{"owner": owner, "operator": operator},
	}
}

func OperatorRevokedEvent(owner, operator string) *types.Event {
	return &types.Event{
		Type:       EventTypeOperatorRevoked,
		Attributes: map[string]string{"owner": owner, "operator": operator},
	}
}
