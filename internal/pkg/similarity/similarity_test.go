package similarity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samirrijal/siteintel/internal/pkg/similarity"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "jose garcia", similarity.Normalize("  José   GARCÍA, "))
	assert.Equal(t, "123 main st", similarity.Normalize("123 Main St."))
	assert.Equal(t, "", similarity.Normalize("--"))
}

func TestScore_Bounds(t *testing.T) {
	assert.Equal(t, 1.0, similarity.Score("Main Street", "main   street"))
	assert.Equal(t, 0.0, similarity.Score("", "anything"))
	s := similarity.Score("Oak Hollow", "Elm Ridge")
	assert.GreaterOrEqual(t, s, 0.0)
	assert.Less(t, s, similarity.AddressThreshold)
}

func TestOwner_OrderAndSuffixInsensitive(t *testing.T) {
	assert.Equal(t, 1.0, similarity.Owner("SMITH JOHN", "John Smith"))
	assert.Equal(t, 1.0, similarity.Owner("Acme Holdings LLC", "ACME HOLDINGS"))
	assert.GreaterOrEqual(t, similarity.Owner("Jon Smith", "John Smith"), similarity.OwnerThreshold)
	assert.Less(t, similarity.Owner("Maria Lopez", "John Smith"), similarity.OwnerThreshold)
}

func TestAddress(t *testing.T) {
	assert.Equal(t, 1.0, similarity.Address("123 Main Street", "123 MAIN ST"))
	assert.Equal(t, 0.0, similarity.Address("123 Main St", "125 Main St"))
	assert.GreaterOrEqual(t, similarity.Address("4500 Westheimer Rd", "4500 Westheimer Road Houston"), 0.8)
}
