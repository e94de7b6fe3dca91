package router

import (
	"fmt"
	"strings"

	"arbvault/crypto"
)

// VenueTag names one of the external venues the router can dispatch to.
type VenueTag string

const (
	VenueOrcaWhirlpool VenueTag = "orca-whirlpool"
	VenueRaydiumRouter VenueTag = "raydium-router"
	VenueRaydiumStable VenueTag = "raydium-stable"
	VenueMeteoraStable VenueTag = "meteora-stable"
	VenueMeteoraDLMM   VenueTag = "meteora-dlmm"
)

// DefaultVenue is recommended by EstimateRoute when quotes tie.
const DefaultVenue = VenueRaydiumRouter

// AllVenues lists every supported tag in table order.
var AllVenues = []VenueTag{
	VenueOrcaWhirlpool,
	VenueRaydiumRouter,
	VenueRaydiumStable,
	VenueMeteoraStable,
	VenueMeteoraDLMM,
}

// ParseVenueTag normalises raw and reports whether it names a supported venue.
func ParseVenueTag(raw string) (VenueTag, error) {
	tag := VenueTag(strings.ToLower(strings.TrimSpace(raw)))
	if !tag.Valid() {
		return "", fmt.Errorf("%w: unknown venue %q", ErrInvalidDexProgram, raw)
	}
	return tag, nil
}

func (t VenueTag) Valid() bool {
	for _, known := range AllVenues {
		if t == known {
			return true
		}
	}
	return false
}

func (t VenueTag) String() string { return string(t) }

// VenueEntry pairs a tag with the program identity expected for it.
type VenueEntry struct {
	Tag     VenueTag
	Program crypto.Address
}

// VenueTable is the authorization table consulted before every dispatch.
// It is immutable once built.
type VenueTable struct {
	programs map[VenueTag]crypto.Address
}

// NewVenueTable validates that every venue is present exactly once with a
// distinct, non-empty identity.
func NewVenueTable(programs map[VenueTag]crypto.Address) (*VenueTable, error) {
	table := &VenueTable{programs: make(map[VenueTag]crypto.Address, len(AllVenues))}
	seen := make(map[crypto.Address]VenueTag, len(programs))
	for tag, program := range programs {
		if !tag.Valid() {
			return nil, fmt.Errorf("%w: unknown venue %q", ErrInvalidVenueTable, tag)
		}
		if program.IsZero() {
			return nil, fmt.Errorf("%w: venue %s has no program identity", ErrInvalidVenueTable, tag)
		}
		if other, dup := seen[program]; dup {
			return nil, fmt.Errorf("%w: venues %s and %s share program %s", ErrInvalidVenueTable, other, tag, program)
		}
		seen[program] = tag
		table.programs[tag] = program
	}
	for _, tag := range AllVenues {
		if _, ok := table.programs[tag]; !ok {
			return nil, fmt.Errorf("%w: venue %s missing", ErrInvalidVenueTable, tag)
		}
	}
	return table, nil
}

// Lookup returns the program identity configured for tag.
func (t *VenueTable) Lookup(tag VenueTag) (crypto.Address, bool) {
	if t == nil {
		return crypto.Address{}, false
	}
	program, ok := t.programs[tag]
	return program, ok
}

// Authorize fails with ErrInvalidDexProgram unless presented is exactly the
// identity configured for tag.
func (t *VenueTable) Authorize(tag VenueTag, presented crypto.Address) error {
	expected, ok := t.Lookup(tag)
	if !ok {
		return fmt.Errorf("%w: unknown venue %q", ErrInvalidDexProgram, tag)
	}
	if presented != expected {
		return fmt.Errorf("%w: venue %s expects %s, got %s", ErrInvalidDexProgram, tag, expected, presented)
	}
	return nil
}

// Entries returns the table in venue order.
func (t *VenueTable) Entries() []VenueEntry {
	out := make([]VenueEntry, 0, len(AllVenues))
	for _, tag := range AllVenues {
		if program, ok := t.Lookup(tag); ok {
			out = append(out, VenueEntry{Tag: tag, Program: program})
		}
	}
	return out
}
