package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeValues(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, MergeValues([]string{"a", "b"}, []string{"b", "c"}))
	assert.Equal(t, []string{"x"}, MergeValues(nil, []string{"x", "x"}))
	assert.Empty(t, MergeValues(nil, nil))
}

func TestMissingValues(t *testing.T) {
	assert.Equal(t, []string{"c"}, MissingValues([]string{"a", "b"}, []string{"b", "c"}))
	assert.Nil(t, MissingValues([]string{"a"}, []string{"a"}))
	assert.Equal(t, []string{"a"}, MissingValues(nil, []string{"a", "a"}))
}
