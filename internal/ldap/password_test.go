package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePassword(t *testing.T) {
	encoded, err := EncodePassword("Ab1!")
	require.NoError(t, err)

	want := []byte{'"', 0, 'A', 0, 'b', 0, '1', 0, '!', 0, '"', 0}
	assert.Equal(t, want, []byte(encoded))
}

func TestEncodePassword_NonASCII(t *testing.T) {
	encoded, err := EncodePassword("é")
	require.NoError(t, err)

	assert.Equal(t, []byte{'"', 0, 0xe9, 0x00, '"', 0}, []byte(encoded))
}
