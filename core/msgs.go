package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"ddbox/core/types"
	"ddbox/native/blindbox"
)

// ErrInvalidMessage is returned for messages that do not select exactly one
// variant or fail to decode.
var ErrInvalidMessage = errors.New("core: invalid message")

type (
	CreateMsg struct {
		Scale           blindbox.Scale      `json:"scale"`
		BasePrice       types.Coin          `json:"base_price"`
		FirstPrizeCount *uint32             `json:"first_prize_count,omitempty"`
		LedgerMode      blindbox.LedgerMode `json:"ledger_mode,omitempty"`
		ExternalLedger  string              `json:"external_ledger,omitempty"`
	}
	SetPriceMsg struct {
		Price types.Coin `json:"price"`
	}
	SetPauseMsg struct {
		Paused bool `json:"paused"`
	}
	SetWindowMsg struct {
		Window blindbox.WindowKind  `json:"window"`
		Bounds blindbox.PhaseWindow `json:"bounds"`
	}
	SetPhaseMsg struct {
		Phase blindbox.Phase `json:"phase"`
	}
	DepositMsg  struct{}
	FinalizeMsg struct{}
	CommitMsg   struct {
		Commitment string `json:"commitment"`
	}
	RevealMsg struct {
		Value string `json:"value"`
		Salt  string `json:"salt"`
	}
	TransferMsg struct {
		Recipient string `json:"recipient"`
		UnitID    uint64 `json:"unit_id"`
	}
	ApprovalMsg struct {
		Spender string `json:"spender"`
		UnitID  uint64 `json:"unit_id"`
	}
	OperatorMsg struct {
		Operator string `json:"operator"`
	}
	RegisterExternalLedgerMsg struct {
		Handle string `json:"handle"`
	}
	MigrateMsg struct {
		Scale blindbox.Scale `json:"scale"`
	}
)

// ExecuteMsg is an externally tagged union: exactly one field is set, for
// example {"commit":{"commitment":"..."}}.
type ExecuteMsg struct {
	Create                 *CreateMsg                 `json:"create,omitempty"`
	SetPrice               *SetPriceMsg               `json:"set_price,omitempty"`
	SetPause               *SetPauseMsg               `json:"set_pause,omitempty"`
	SetWindow              *SetWindowMsg              `json:"set_window,omitempty"`
	SetPhase               *SetPhaseMsg               `json:"set_phase,omitempty"`
	Deposit                *DepositMsg                `json:"deposit,omitempty"`
	Commit                 *CommitMsg                 `json:"commit,omitempty"`
	Reveal                 *RevealMsg                 `json:"reveal,omitempty"`
	Finalize               *FinalizeMsg               `json:"finalize,omitempty"`
	Transfer               *TransferMsg               `json:"transfer,omitempty"`
	Approve                *ApprovalMsg               `json:"approve,omitempty"`
	Revoke                 *ApprovalMsg               `json:"revoke,omitempty"`
	ApproveAll             *OperatorMsg               `json:"approve_all,omitempty"`
	RevokeAll              *OperatorMsg               `json:"revoke_all,omitempty"`
	RegisterExternalLedger *RegisterExternalLedgerMsg `json:"register_external_ledger,omitempty"`
	Migrate                *MigrateMsg                `json:"migrate,omitempty"`
}

// Action returns the name of the selected variant.
func (m ExecuteMsg) Action() (string, error) {
	set := map[string]bool{
		"create":                   m.Create != nil,
		"set_price":                m.SetPrice != nil,
		"set_pause":                m.SetPause != nil,
		"set_window":               m.SetWindow != nil,
		"set_phase":                m.SetPhase != nil,
		"deposit":                  m.Deposit != nil,
		"commit":                   m.Commit != nil,
		"reveal":                   m.Reveal != nil,
		"finalize":                 m.Finalize != nil,
		"transfer":                 m.Transfer != nil,
		"approve":                  m.Approve != nil,
		"revoke":                   m.Revoke != nil,
		"approve_all":              m.ApproveAll != nil,
		"revoke_all":               m.RevokeAll != nil,
		"register_external_ledger": m.RegisterExternalLedger != nil,
		"migrate":                  m.Migrate != nil,
	}
	return selectOne(set)
}

// QueryMsg is the read-only counterpart of ExecuteMsg.
type QueryMsg struct {
	Config           *struct{}            `json:"config,omitempty"`
	Version          *struct{}            `json:"version,omitempty"`
	Deposit          *AddressQuery        `json:"deposit,omitempty"`
	Tier             *AddressQuery        `json:"tier,omitempty"`
	TierList         *TierListQuery       `json:"tier_list,omitempty"`
	OwnerOf          *UnitQuery           `json:"owner_of,omitempty"`
	UnitInfo         *UnitQuery           `json:"unit_info,omitempty"`
	Approval         *UnitQuery           `json:"approval,omitempty"`
	IsApprovedForAll *OperatorStatusQuery `json:"is_approved_for_all,omitempty"`
	Units            *UnitsQuery          `json:"units,omitempty"`
	AllUnits         *PageQuery           `json:"all_units,omitempty"`
}

type (
	AddressQuery struct {
		Address string `json:"address"`
	}
	TierListQuery struct {
		Tier       blindbox.Tier `json:"tier"`
		StartAfter string        `json:"start_after,omitempty"`
		Limit      *uint32       `json:"limit,omitempty"`
	}
	UnitQuery struct {
		UnitID uint64 `json:"unit_id"`
	}
	OperatorStatusQuery struct {
		Owner    string `json:"owner"`
		Operator string `json:"operator"`
	}
	UnitsQuery struct {
		Owner      string  `json:"owner"`
		StartAfter *uint64 `json:"start_after,omitempty"`
		Limit      *uint32 `json:"limit,omitempty"`
	}
	PageQuery struct {
		StartAfter *uint64 `json:"start_after,omitempty"`
		Limit      *uint32 `json:"limit,omitempty"`
	}
)

// Action returns the name of the selected query.
func (q QueryMsg) Action() (string, error) {
	set := map[string]bool{
		"config":              q.Config != nil,
		"version":             q.Version != nil,
		"deposit":             q.Deposit != nil,
		"tier":                q.Tier != nil,
		"tier_list":           q.TierList != nil,
		"owner_of":            q.OwnerOf != nil,
		"unit_info":           q.UnitInfo != nil,
		"approval":            q.Approval != nil,
		"is_approved_for_all": q.IsApprovedForAll != nil,
		"units":               q.Units != nil,
		"all_units":           q.AllUnits != nil,
	}
	return selectOne(set)
}

func selectOne(set map[string]bool) (string, error) {
	selected := ""
	for name, ok := range set {
		if !ok {
			continue
		}
		if selected != "" {
			return "", fmt.Errorf("%w: more than one variant set", ErrInvalidMessage)
		}
		selected = name
	}
	if selected == "" {
		return "", fmt.Errorf("%w: no variant set", ErrInvalidMessage)
	}
	return selected, nil
}

func decodeStrict(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// ParseExecuteMsg decodes and validates an execute message.
func ParseExecuteMsg(raw []byte) (ExecuteMsg, error) {
	var msg ExecuteMsg
	if err := decodeStrict(raw, &msg); err != nil {
		return ExecuteMsg{}, err
	}
	if _, err := msg.Action(); err != nil {
		return ExecuteMsg{}, err
	}
	return msg, nil
}

// ParseQueryMsg decodes and validates a query message.
func ParseQueryMsg(raw []byte) (QueryMsg, error) {
	var msg QueryMsg
	if err := decodeStrict(raw, &msg); err != nil {
		return QueryMsg{}, err
	}
	if _, err := msg.Action(); err != nil {
		return QueryMsg{}, err
	}
	return msg, nil
}
