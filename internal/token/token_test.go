package token

import (
	"testing"
	"time"

	xerrors "xpertly/internal/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerify(t *testing.T) {
	signer := NewSigner("test-secret", time.Hour)
	runID := uuid.New()

	tok, err := signer.Mint(runID, "bearer-abc")
	require.NoError(t, err)

	claims, err := signer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, runID.String(), claims.ID)
	assert.Equal(t, "bearer-abc", claims.Auth)

	parsed, err := claims.RunID()
	require.NoError(t, err)
	assert.Equal(t, runID, parsed)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := NewSigner("secret-a", time.Hour).Mint(uuid.New(), "auth")
	require.NoError(t, err)

	_, err = NewSigner("secret-b", time.Hour).Verify(tok)
	require.Error(t, err)
	assert.True(t, xerrors.IsAuth(err))
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	expired := &Signer{secret: []byte("secret"), ttl: -time.Minute}

	tok, err := expired.Mint(uuid.New(), "auth")
	require.NoError(t, err)

	_, err = signer.Verify(tok)
	require.Error(t, err)
	assert.True(t, xerrors.IsAuth(err))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewSigner("secret", time.Hour).Verify("not-a-jwt")
	assert.True(t, xerrors.IsAuth(err))
}
