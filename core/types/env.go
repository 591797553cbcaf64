package types

// Env describes the execution context of a single invocation.
type Env struct {
	Caller   string
	Height   uint64
	Time     uint64
	Contract string
	// TxIndex is the position of the invocation within its block, when known.
	TxIndex *uint32
}

// TxIndexOrZero returns the transaction index or zero when unknown.
func (e Env) TxIndexOrZero() uint32 {
	if e.TxIndex == nil {
		return 0
	}
	return *e.TxIndex
}
