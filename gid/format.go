package gid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/gidref/core"
)

// ErrMalformed is returned when parsing or decoding a GID fails.
var ErrMalformed = errors.New("gid: malformed identifier")

const invalidString = "{invalid}"

// String renders g as "{msb, lsb}" with 16 hex digits per word, or
// "{invalid}" for the invalid GID.
func (g GID) String() string {
	if !g.IsValid() {
		return invalidString
	}
	return fmt.Sprintf("{%016x, %016x}", g.Msb, g.Lsb)
}

// Hex renders g as 32 hex digits.
func (g GID) Hex() string {
	return fmt.Sprintf("%016x%016x", g.Msb, g.Lsb)
}

// Parse accepts the output of String or Hex. An optional 0x prefix is
// allowed for the Hex form. The lock bit is always cleared.
func Parse(s string) (GID, error) {
	s = strings.TrimSpace(s)
	if s == invalidString {
		return Invalid, nil
	}

	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		msbStr, lsbStr, ok := strings.Cut(s[1:len(s)-1], ",")
		if !ok {
			return Invalid, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
		return parseWords(strings.TrimSpace(msbStr), strings.TrimSpace(lsbStr))
	}

	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 32 {
		return Invalid, fmt.Errorf("%w: want 32 hex digits, got %d", ErrMalformed, len(s))
	}
	return parseWords(s[:16], s[16:])
}

func parseWords(msbStr, lsbStr string) (GID, error) {
	msb, err := strconv.ParseUint(msbStr, 16, 64)
	if err != nil {
		return Invalid, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	lsb, err := strconv.ParseUint(lsbStr, 16, 64)
	if err != nil {
		return Invalid, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return New(msb, lsb), nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(s string) GID {
	g, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return g
}

// MarshalText implements encoding.TextMarshaler.
func (g GID) MarshalText() ([]byte, error) {
	return []byte(g.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *GID) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// Fields is a decoded view of a GID used for debug output.
type Fields struct {
	GID           string `json:"gid"`
	Locality      int64  `json:"locality"`
	ComponentType uint32 `json:"component_type"`
	Credit        int64  `json:"credit"`
	Log2Credit    uint8  `json:"log2_credit"`
	HasCredits    bool   `json:"has_credits"`
	WasSplit      bool   `json:"was_split"`
	DontCache     bool   `json:"dont_cache,omitempty"`
	Migratable    bool   `json:"migratable,omitempty"`
	Dynamic       bool   `json:"dynamically_assigned,omitempty"`
}

// Describe decodes every field of g. An invalid locality is reported as -1.
func (g GID) Describe() Fields {
	loc := int64(g.LocalityID())
	if g.LocalityID() == core.InvalidLocality {
		loc = -1
	}
	return Fields{
		GID:           g.String(),
		Locality:      loc,
		ComponentType: uint32(g.ComponentType()),
		Credit:        g.Credit(),
		Log2Credit:    g.Log2Credit(),
		HasCredits:    g.HasCredits(),
		WasSplit:      g.WasSplit(),
		DontCache:     g.DontCache(),
		Migratable:    g.Migratable(),
		Dynamic:       g.DynamicallyAssigned(),
	}
}
