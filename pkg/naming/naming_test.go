package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Beyoncé", "beyonce"},
		{"Simon & Garfunkel", "simon and garfunkel"},
		{"Greatest Hits Vol. II", "greatest hits vol 2"},
		{"I Robot", "i robot"},
		{"  Don't   Stop  ", "dont stop"},
		{"AC/DC: Live!", "ac dc live"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Fold(tt.in))
		})
	}
}

func TestNFC(t *testing.T) {
	decomposed := "Cafe\u0301"
	assert.Equal(t, "Caf\u00e9", NFC(decomposed))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("road trip", "My Road Trip Mix"), 0.0001)
	assert.Zero(t, Similarity("", "anything"))
	assert.Less(t, Similarity("jazz", "Heavy Metal Workout"), 0.70)
}

func TestRank(t *testing.T) {
	candidates := []string{"Summer Hits 2024", "Winter Chill", "Summer Hitz"}
	got := Rank("summer hits", candidates, ConfidenceLow)
	require.Len(t, got, 2)
	assert.Equal(t, "Summer Hits 2024", got[0].Name)
	assert.Equal(t, ConfidenceHigh, got[0].Confidence)
	assert.Equal(t, "Summer Hitz", got[1].Name)
}

func TestConfidenceString(t *testing.T) {
	assert.Equal(t, "high", ConfidenceHigh.String())
	assert.Equal(t, "medium", ConfidenceMedium.String())
	assert.Equal(t, "low", ConfidenceLow.String())
	assert.Equal(t, "none", ConfidenceNone.String())
}
