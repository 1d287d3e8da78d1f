package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateLogin(t *testing.T) {
	adminHash, err := HashPassword("deal-me-in")
	require.NoError(t, err)
	limitedHash, err := HashPassword("ohhell")
	require.NoError(t, err)
	g := NewGate(adminHash, limitedHash)

	role, err := g.Login("deal-me-in")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	role, err = g.Login("ohhell")
	require.NoError(t, err)
	assert.Equal(t, RoleLimited, role)

	role, err = g.Login("wrong")
	assert.ErrorIs(t, err, ErrBadPassword)
	assert.Equal(t, RoleNone, role)
}

func TestGateDisabledRole(t *testing.T) {
	g := NewGate("", "")
	_, err := g.Login("")
	assert.ErrorIs(t, err, ErrBadPassword)
}

func TestRoleCapabilities(t *testing.T) {
	assert.True(t, RoleAdmin.CanWrite())
	assert.True(t, RoleAdmin.CanAdminister())
	assert.True(t, RoleLimited.CanWrite())
	assert.False(t, RoleLimited.CanAdminister())
	assert.False(t, RoleNone.CanWrite())
}

func TestIssuerRoundTrip(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)

	tok, exp, err := iss.Issue(RoleLimited)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	role, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, RoleLimited, role)
}

func TestIssuerRejectsExpiredAndForeignTokens(t *testing.T) {
	iss, err := NewIssuer("secret", time.Minute)
	require.NoError(t, err)
	tok, _, err := iss.Issue(RoleAdmin)
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Issue(RoleAdmin)
	require.NoError(t, err)
	iss.now = time.Now
	_, err = iss.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewIssuer("", time.Hour)
	assert.Error(t, err)
}
