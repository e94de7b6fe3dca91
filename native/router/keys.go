package router

import "arbvault/crypto"

var (
	routerStatePrefix = []byte("router/state/")
	poolAuthoritySeed = []byte("pool_authority")
)

func routerStateKey(program crypto.Address) []byte {
	buf := make([]byte, len(routerStatePrefix)+crypto.AddressLength)
	copy(buf, routerStatePrefix)
	copy(buf[len(routerStatePrefix):], program[:])
	return buf
}

// PoolAuthority is the derived identity holding the reserves of pool. Only
// the router program can sign for it.
func PoolAuthority(program, pool crypto.Address) crypto.DerivedAuthority {
	return crypto.DeriveAuthority(program, poolAuthoritySeed, pool.Bytes())
}
