package types

import "encoding/json"

// Transfer instructs the host to send native currency out of the contract.
type Transfer struct {
	Recipient string `json:"recipient"`
	Coin      Coin   `json:"coin"`
}

// Instruction is a message addressed to an external collaborator, for example
// the unit ownership service in the delegated ledger variant.
type Instruction struct {
	Target  string          `json:"target"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Event is the generic form of an engine event: a dotted type such as
// "blindbox.deposit" plus flat string attributes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
