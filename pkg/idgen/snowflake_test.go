package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIDUnique(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 10000; i++ {
		id := NextID()
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}

func TestNextIDMonotonic(t *testing.T) {
	prev := NextID()
	for i := 0; i < 1000; i++ {
		id := NextID()
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestGenerateInvoiceNumber(t *testing.T) {
	no := GenerateInvoiceNumber()
	assert.True(t, strings.HasPrefix(no, "INV-"), "got %s", no)

	parts := strings.Split(no, "-")
	assert.Len(t, parts, 3)
	assert.Len(t, parts[1], 14, "timestamp segment")
	assert.Len(t, parts[2], 8, "id segment")
}

func TestGeneratePrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateRefundNumber(), "REF-"))
	assert.True(t, strings.HasPrefix(GenerateTransactionNumber(), "TXN-"))
}
