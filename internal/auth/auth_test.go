package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		role    Role
		op      Operation
		allowed bool
	}{
		{RoleAdministrator, OpAuditRead, true},
		{RoleAdministrator, OpBatchDelete, true},
		{RoleOperator, OpBatchDelete, true},
		{RoleOperator, OpBulkRun, true},
		{RoleOperator, OpAuditRead, false},
		{RoleReviewer, OpDocumentRead, true},
		{RoleReviewer, OpAuditRead, true},
		{RoleReviewer, OpDocumentWrite, false},
		{RoleReviewer, OpBulkRun, false},
		{Role("guest"), OpDocumentRead, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.op), func(t *testing.T) {
			err := Authorize(tt.role, tt.op)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestCallerContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, System, CallerOrSystem(context.Background()))

	c := Caller{UserID: "u1", Email: "ana@example.com", Role: RoleReviewer}
	got, ok := FromContext(WithCaller(context.Background(), c))
	require.True(t, ok)
	assert.Equal(t, c, got)
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("s3cret")
	c := Caller{UserID: "u1", Email: "ana@example.com", Role: RoleOperator}

	token, err := v.Sign(c, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("s3cret")

	expired, err := v.Sign(Caller{UserID: "u1", Role: RoleOperator},
		jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))})
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	other, err := NewVerifier("other").Sign(Caller{UserID: "u1", Role: RoleOperator}, jwt.RegisteredClaims{})
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	badRole, err := v.Sign(Caller{UserID: "u1", Role: "root"}, jwt.RegisteredClaims{})
	require.NoError(t, err)
	_, err = v.Verify(badRole)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = NewVerifier("").Verify("anything")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
