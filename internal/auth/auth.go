// Package auth carries the caller identity through a request and decides what each role may do.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthenticated is returned for missing or invalid credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the role may not perform the operation.
	ErrForbidden = errors.New("forbidden")
)

// Role is issued by the identity provider.
type Role string

const (
	RoleAdministrator Role = "admin"
	RoleOperator      Role = "operativo"
	RoleReviewer      Role = "revisor"
)

// Caller identifies who is performing an operation.
type Caller struct {
	UserID string
	Email  string
	Role   Role
}

// System is the caller used by background jobs started without a request.
var System = Caller{UserID: "system", Email: "system@docflow", Role: RoleAdministrator}

// Operation names an action subject to authorization.
type Operation string

const (
	OpDocumentRead   Operation = "document.read"
	OpDocumentWrite  Operation = "document.write"
	OpDocumentDelete Operation = "document.delete"
	OpBatchRead      Operation = "batch.read"
	OpBatchWrite     Operation = "batch.write"
	OpBatchDelete    Operation = "batch.delete"
	OpArtifactRead   Operation = "artifact.read"
	OpArtifactWrite  Operation = "artifact.write"
	OpBulkRun        Operation = "bulk.run"
	OpAuditRead      Operation = "audit.read"
	OpStatsRead      Operation = "stats.read"
)

var readOnly = map[Operation]bool{
	OpDocumentRead: true,
	OpBatchRead:    true,
	OpArtifactRead: true,
	OpStatsRead:    true,
}

// Authorize is a pure function of (role, operation).
func Authorize(role Role, op Operation) error {
	switch role {
	case RoleAdministrator:
		return nil
	case RoleOperator:
		if op != OpAuditRead {
			return nil
		}
	case RoleReviewer:
		if readOnly[op] || op == OpAuditRead {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q may not %s", ErrForbidden, role, op)
}

type ctxKey struct{}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the caller stored in ctx.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}

// CallerOrSystem returns the caller in ctx, or System when none is present.
func CallerOrSystem(ctx context.Context) Caller {
	if c, ok := FromContext(ctx); ok {
		return c
	}
	return System
}

// Claims is the access token payload.
type Claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses the token and returns the caller it identifies.
func (v *Verifier) Verify(token string) (Caller, error) {
	if len(v.secret) == 0 {
		return Caller{}, fmt.Errorf("%w: no signing secret configured", ErrUnauthenticated)
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Caller{}, fmt.Errorf("%w: invalid token claims", ErrUnauthenticated)
	}
	switch claims.Role {
	case RoleAdministrator, RoleOperator, RoleReviewer:
	default:
		return Caller{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, claims.Role)
	}
	return Caller{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// Sign issues a token for c. Used by tests and local tooling.
func (v *Verifier) Sign(c Caller, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = c.UserID
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Email:            c.Email,
		Role:             c.Role,
		RegisteredClaims: claims,
	}).SignedString(v.secret)
}
