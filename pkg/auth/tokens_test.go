package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryhound/sentryhound/pkg/models"
)

func TestIssuer_IssueAndVerifyAccessToken(t *testing.T) {
	iss := NewIssuer("super-secret-test-value-0123456789", time.Minute, time.Hour)

	token, err := iss.IssueAccessToken("user-1", models.RoleAnalyst)
	require.NoError(t, err)

	claims, err := iss.Verify(token, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, models.RoleAnalyst, claims.Role)
}

func TestIssuer_RefreshTokenRejectedAsAccessToken(t *testing.T) {
	iss := NewIssuer("super-secret-test-value-0123456789", time.Minute, time.Hour)

	refresh, err := iss.IssueRefreshToken("user-1")
	require.NoError(t, err)

	_, err = iss.Verify(refresh, TokenAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestIssuer_ExpiredTokenIsRejected(t *testing.T) {
	iss := NewIssuer("super-secret-test-value-0123456789", -time.Second, time.Hour)

	token, err := iss.IssueAccessToken("user-1", models.RoleAdmin)
	require.NoError(t, err)

	_, err = iss.Verify(token, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_TokenSignedWithDifferentSecretIsRejected(t *testing.T) {
	issA := NewIssuer("secret-a-0123456789012345678901234", time.Minute, time.Hour)
	issB := NewIssuer("secret-b-0123456789012345678901234", time.Minute, time.Hour)

	token, err := issA.IssueAccessToken("user-1", models.RoleAnalyst)
	require.NoError(t, err)

	_, err = issB.Verify(token, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPrincipalFromClaims_CarriesSubjectAndRole(t *testing.T) {
	iss := NewIssuer("super-secret-test-value-0123456789", time.Minute, time.Hour)
	token, err := iss.IssueAccessToken("user-2", models.RoleAdmin)
	require.NoError(t, err)

	claims, err := iss.Verify(token, TokenAccess)
	require.NoError(t, err)

	p := PrincipalFromClaims(claims)
	assert.Equal(t, "user-2", p.Subject)
	assert.True(t, p.IsAdmin())
}
