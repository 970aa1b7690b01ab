package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryMembership(t *testing.T) {
	r := NewRegistry("read_file", "edit_file")

	assert.True(t, r.Contains("read_file"))
	assert.False(t, r.Contains("delete_repo"))
	assert.Equal(t, 2, r.Len())

	r.Add("run_tests")
	assert.True(t, r.Contains("run_tests"))

	r.Remove("edit_file")
	assert.False(t, r.Contains("edit_file"))
}

func TestRegistryIDsSorted(t *testing.T) {
	r := NewRegistry("zeta", "alpha", "mid")
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.IDs())
}

func TestEmptyRegistryContainsNothing(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Contains(""))
	assert.False(t, r.Contains("anything"))
	assert.Equal(t, 0, r.Len())
}
