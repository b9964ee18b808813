package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBoundsPolicy(t *testing.T) {
	tests := map[string]BoundsPolicy{
		"":        PolicyError,
		"error":   PolicyError,
		"Skip":    PolicySkip,
		" clamp ": PolicyClamp,
	}

	for in, want := range tests {
		got, err := ParseBoundsPolicy(in)
		require.NoError(t, err, "%q", in)
		assert.Equal(t, want, got, "%q", in)
	}

	_, err := ParseBoundsPolicy("wrap")
	assert.EqualError(t, err, `unknown bounds policy "wrap"`)
}

func TestBoundsPolicyText(t *testing.T) {
	var p BoundsPolicy
	require.NoError(t, p.UnmarshalText([]byte("clamp")))
	assert.Equal(t, PolicyClamp, p)

	b, err := p.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "clamp", string(b))

	assert.Error(t, p.UnmarshalText([]byte("wrap")))
	assert.Equal(t, PolicyClamp, p, "unchanged on error")
	assert.Equal(t, "BoundsPolicy(7)", BoundsPolicy(7).String())
}
