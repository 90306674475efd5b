package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetHas(t *testing.T) {
	s := NewSet(Manager, Sales, Manager)
	assert.True(t, s.Has(Manager))
	assert.True(t, s.Has(Sales))
	assert.False(t, s.Has(Principal))
	assert.Equal(t, 2, s.Len())

	var empty Set
	assert.False(t, empty.Has(EA))
	assert.Empty(t, empty.Slice())
}

func TestSetSliceOrder(t *testing.T) {
	s := NewSet(Sales, Role("auditor"), Principal, GM)
	assert.Equal(t, []Role{Principal, GM, Sales, Role("auditor")}, s.Slice())
}

func TestParse(t *testing.T) {
	r, err := Parse("ea")
	require.NoError(t, err)
	assert.Equal(t, EA, r)

	_, err = Parse("admin")
	require.Error(t, err)
}
