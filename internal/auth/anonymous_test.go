// ABOUTME: Tests for the development-mode pass-through authenticator

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymous_PassesCredentialsThrough(t *testing.T) {
	userID, err := Anonymous{}.Validate("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestAnonymous_RejectsEmpty(t *testing.T) {
	_, err := Anonymous{}.Validate("   ")
	assert.Error(t, err)
}
