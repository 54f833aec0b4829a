package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("Kakao")
	require.NoError(t, err)
	assert.Equal(t, ProviderKakao, p)

	p, err = ParseProvider(" google ")
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, p)

	_, err = ParseProvider("github")
	assert.Error(t, err)
}

func TestUserHasPassword(t *testing.T) {
	assert.False(t, (&User{}).HasPassword())
	assert.True(t, (&User{HashedPassword: "$2a$04$x"}).HasPassword())
}
