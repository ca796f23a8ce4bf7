package card

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKeySetProducesDistinctHexKeys(t *testing.T) {
	keys, err := generateKeySet()
	assert.NoError(t, err)

	seen := make(map[string]bool)
	for _, k := range keys {
		assert.Len(t, k, aesKeyBytes*2)
		assert.False(t, seen[k], "expected all generated keys to be distinct")
		seen[k] = true
	}
}
