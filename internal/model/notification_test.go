package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_Scan(t *testing.T) {
	var m Metadata
	require.NoError(t, m.Scan(`{"partnership_id":"p1","partner_name":"Ada"}`))
	assert.Equal(t, "p1", m["partnership_id"])

	require.NoError(t, m.Scan([]byte(`{"k":"v"}`)))
	assert.Equal(t, Metadata{"k": "v"}, m)

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	assert.Error(t, m.Scan(42))
}

func TestMetadata_ValueOfNil(t *testing.T) {
	var m Metadata
	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}
