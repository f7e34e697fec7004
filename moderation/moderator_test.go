package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// The dictionary uses specific words to avoid partial collisions
// (e.g. "he" inside "The").
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dictionary := []string{"badger", "snake", "mushroom"}
	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "The badger is here",
			expected: "The ****** is here",
			words:    []string{"badger"},
		},
		{
			name:     "Multiple occurrences",
			input:    "badger badger badger",
			expected: "****** ****** ******",
			words:    []string{"badger", "badger", "badger"},
		},
		{
			name:     "Uppercase",
			input:    "A SNAKE in the grass",
			expected: "A ***** in the grass",
			words:    []string{"snake"},
		},
		{
			name:     "Leet speak",
			input:    "a b4dg3r appears",
			expected: "a ****** appears",
			words:    []string{"badger"},
		},
		{
			name:     "Clean text untouched",
			input:    "nothing to see here",
			expected: "nothing to see here",
			words:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			censored, found := mod.Censor(tt.input)
			require.Equal(t, tt.expected, censored)
			require.Equal(t, tt.words, found)
		})
	}
}
