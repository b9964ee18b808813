package matrix

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// BoundsPolicy decides what drawing primitives do with coordinates that fall
// outside of the matrix.
type BoundsPolicy uint8

const (
	// PolicyError rejects the whole operation with ErrOutOfRange.
	PolicyError BoundsPolicy = iota
	// PolicySkip silently drops the pixels that are out of range.
	PolicySkip
	// PolicyClamp moves out of range coordinates onto the nearest edge.
	PolicyClamp
)

// String returns the policy name as used in configuration files.
func (p BoundsPolicy) String() string {
	switch p {
	case PolicyError:
		return "error"
	case PolicySkip:
		return "skip"
	case PolicyClamp:
		return "clamp"
	default:
		return fmt.Sprintf("BoundsPolicy(%d)", p)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p BoundsPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty string means
// PolicyError.
func (p *BoundsPolicy) UnmarshalText(text []byte) error {
	v, err := ParseBoundsPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseBoundsPolicy parses a policy name.
func ParseBoundsPolicy(s string) (BoundsPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "error":
		return PolicyError, nil
	case "skip":
		return PolicySkip, nil
	case "clamp":
		return PolicyClamp, nil
	default:
		return 0, errors.Errorf("unknown bounds policy %q", s)
	}
}
