package state

import "encoding/binary"

var (
	blindBoxConfigKey          = []byte("blindbox/config")
	blindBoxContractVersionKey = []byte("blindbox/version")
	blindBoxDepositPrefix      = []byte("blindbox/deposit/")
	blindBoxCommitPrefix       = []byte("blindbox/commit/")
	blindBoxRevealPrefix       = []byte("blindbox/reveal/")
	blindBoxTierPrefix         = []byte("blindbox/tier/")
	blindBoxUnitPrefix         = []byte("blindbox/unit/")
	blindBoxOperatorPrefix     = []byte("blindbox/operator/")
	blindBoxOwnerUnitPrefix    = []byte("blindbox/owner-unit/")
)

func prefixed(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func encodeUnitID(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func depositKey(addr string) []byte { return prefixed(blindBoxDepositPrefix, []byte(addr)) }
func commitKey(addr string) []byte { return prefixed(blindBoxCommitPrefix, []byte(addr)) }
func revealKey(addr string) []byte { return prefixed(blindBoxRevealPrefix, []byte(addr)) }
func tierKey(addr string) []byte { return prefixed(blindBoxTierPrefix, []byte(addr)) }
func unitKey(id uint64) []byte { return prefixed(blindBoxUnitPrefix, encodeUnitID(id)) }

func operatorKey(owner, operator string) []byte {
	return prefixed(blindBoxOperatorPrefix, []byte(owner), []byte{'/'}, []byte(operator))
}

func ownerUnitPrefix(owner string) []byte {
	return prefixed(blindBoxOwnerUnitPrefix, []byte(owner), []byte{'/'})
}

func ownerUnitKey(owner string, id uint64) []byte {
	return prefixed(ownerUnitPrefix(owner), encodeUnitID(id))
}
