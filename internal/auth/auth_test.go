package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleHasAtLeast(t *testing.T) {
	assert.True(t, RoleAdmin.HasAtLeast(RoleUser))
	assert.True(t, RoleAdmin.HasAtLeast(RoleCreator))
	assert.True(t, RoleAdmin.HasAtLeast(RoleAdmin))
	assert.True(t, RoleCreator.HasAtLeast(RoleUser))
	assert.False(t, RoleCreator.HasAtLeast(RoleAdmin))
	assert.False(t, RoleUser.HasAtLeast(RoleCreator))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("bogus")
	assert.Error(t, err)
}

func TestAuthMethodJSONRoundTrip(t *testing.T) {
	cases := []AuthMethod{
		Password("$argon2id$v=19$m=65536,t=1,p=4$abc$def"),
		OAuthGoogle("google-user-123"),
		OAuthGithub("github-user-456"),
		Anonymous(),
	}

	for _, m := range cases {
		data, err := m.ToJSON()
		require.NoError(t, err)

		round, err := FromJSON(m.Type, data)
		require.NoError(t, err)
		assert.Equal(t, m, round)
	}
}

func TestFromJSONUnknownType(t *testing.T) {
	_, err := FromJSON("carrier_pigeon", "{}")
	assert.ErrorIs(t, err, ErrUnknownAuthMethod)
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := VerifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	_, err := VerifyPassword("whatever", "not-a-valid-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestNewAnonymousIDIsUnique(t *testing.T) {
	a := NewAnonymousID()
	b := NewAnonymousID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
