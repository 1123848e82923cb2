package country

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodesSortedByCode(t *testing.T) {
	codes := Codes()
	assert.Len(t, codes, 31)
	assert.True(t, sort.StringsAreSorted(codes))
	assert.Contains(t, codes, "WHO")
	assert.Contains(t, codes, "EU")
}

func TestName(t *testing.T) {
	assert.Equal(t, "United Kingdom", Name("GB"))
	assert.Equal(t, "XX", Name("XX"))
	assert.True(t, Supported("UN"))
	assert.False(t, Supported("XX"))
}
