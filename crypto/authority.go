package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// derivationMarker separates derived identities from anything a key pair can
// produce: PubkeyToAddress never hashes this suffix.
var derivationMarker = []byte("arbvault/derived-authority")

var (
	ErrAuthorityMismatch = errors.New("derived authority: address does not match program and seeds")
	ErrAuthorityProgram  = errors.New("derived authority: program identity required")
)

// DerivedAuthority is a keyless identity computed from a program identity and
// a fixed list of seeds. It carries no secret; the hosting runtime treats it
// as a signer only after recomputing the derivation for the program that
// presents it.
type DerivedAuthority struct {
	Program Address
	Seeds   [][]byte
	Address Address
}

// DeriveAuthority computes the authority owned by program for the supplied
// seeds.
func DeriveAuthority(program Address, seeds ...[]byte) DerivedAuthority {
	copied := make([][]byte, len(seeds))
	for i, seed := range seeds {
		copied[i] = append([]byte(nil), seed...)
	}
	return DerivedAuthority{
		Program: program,
		Seeds:   copied,
		Address: deriveAddress(program, copied),
	}
}

func deriveAddress(program Address, seeds [][]byte) Address {
	buf := make([]byte, 0, AddressLength+len(derivationMarker)+8*len(seeds))
	buf = append(buf, program[:]...)
	var lenPrefix [4]byte
	for _, seed := range seeds {
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(seed)))
		buf = append(buf, lenPrefix[:]...)
		buf = append(buf, seed...)
	}
	buf = append(buf, derivationMarker...)
	return BytesToAddress(crypto.Keccak256(buf))
}

// Verify recomputes the derivation and reports whether the recorded address
// is the one owned by Program.
func (d DerivedAuthority) Verify() error {
	if d.Program.IsZero() {
		return ErrAuthorityProgram
	}
	if deriveAddress(d.Program, d.Seeds) != d.Address {
		return ErrAuthorityMismatch
	}
	return nil
}

// Permits reports whether the authority speaks for addr.
func (d DerivedAuthority) Permits(addr Address) bool {
	return !addr.IsZero() && d.Address == addr
}

func (d DerivedAuthority) String() string {
	return fmt.Sprintf("%s (derived from %s)", d.Address, d.Program)
}
