package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPinWidth(t *testing.T) {
	for _, tt := range []struct{ in, want int }{{6, 6}, {7, 7}, {8, 8}, {2, 6}, {12, 8}} {
		pin, err := NewPin(tt.in)
		require.NoError(t, err)
		assert.Len(t, pin, tt.want)
		for _, r := range pin {
			assert.True(t, r >= '0' && r <= '9', pin)
		}
	}
}

func TestPinWidthsWiden(t *testing.T) {
	widths := pinWidths(7)
	require.Len(t, widths, 2*pinAttempts)
	assert.Equal(t, 7, widths[0])
	assert.Equal(t, 8, widths[len(widths)-1])
}

func TestCreateSessionRetriesCollisions(t *testing.T) {
	h := newHarness(t)

	seen := make(map[string]bool)
	for range 50 {
		pin := h.create(t, false)
		assert.False(t, seen[pin], "pin %s handed out twice", pin)
		seen[pin] = true
	}
}
