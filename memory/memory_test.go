package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"reset", "password", "settings"}, Tokenize("How can I reset the password? Password, settings!"))
	assert.Empty(t, Tokenize("a an to"))
}

func TestOverlap(t *testing.T) {
	q := Tokenize("refund order")
	assert.Equal(t, 1.0, Overlap(q, "Your refund for the order was issued"))
	assert.Equal(t, 0.5, Overlap(q, "Refund issued"))
	assert.Equal(t, 0.0, Overlap(nil, "anything"))
}

func TestRecall_RanksByOverlapThenRecency(t *testing.T) {
	entries := []string{
		"Refunds take five business days.",
		"Reset your password from the settings page.",
		"",
		"Password resets are emailed within minutes.",
	}

	results := Recall(entries, "I cannot reset my password", 2)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 3, results[1].Index)
	assert.Greater(t, results[0].Score, results[1].Score)

	assert.Equal(t, []string{entries[1], entries[3]}, Contents(results))
}

func TestRecall_EmptyQueryReturnsNewest(t *testing.T) {
	entries := []string{"first", "second", "third"}

	results := Recall(entries, "", 2)
	require.Len(t, results, 2)
	assert.Equal(t, "third", results[0].Content)
	assert.Equal(t, "second", results[1].Content)

	assert.Empty(t, Recall(entries, "unrelated shipping", 0))
}
