package vault

import "arbvault/crypto"

var (
	vaultStatePrefix = []byte("vault/state/")
	positionPrefix   = []byte("vault/position/")
	vaultSeed        = []byte("vault")
)

func vaultStateKey(program crypto.Address) []byte {
	buf := make([]byte, len(vaultStatePrefix)+crypto.AddressLength)
	copy(buf, vaultStatePrefix)
	copy(buf[len(vaultStatePrefix):], program[:])
	return buf
}

func positionKey(program, owner crypto.Address) []byte {
	buf := make([]byte, len(positionPrefix)+2*crypto.AddressLength)
	copy(buf, positionPrefix)
	copy(buf[len(positionPrefix):], program[:])
	copy(buf[len(positionPrefix)+crypto.AddressLength:], owner[:])
	return buf
}
