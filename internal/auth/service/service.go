// Package service authenticates operators and manages their tokens.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"repairhub/internal/auth/models"
	jwttoken "repairhub/internal/jwt_token"
	"repairhub/internal/sanitize"
	"repairhub/internal/secret"
	dErrors "repairhub/pkg/domain-errors"
	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/requestcontext"
)

const (
	minRevocationTTL = time.Second

	// maxLoggedEmail caps the caller-supplied address stored on a failed login.
	maxLoggedEmail = 255
)

// TokenIssuer mints operator tokens.
type TokenIssuer interface {
	GenerateToken(subject, role string, expiresIn time.Duration) (string, *jwttoken.Claims, error)
}

// TokenRevocationList records logged-out tokens until they would expire.
type TokenRevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

// AuditPublisher records security events.
type AuditPublisher interface {
	Append(ctx context.Context, rec audit.Record) (audit.Event, error)
}

type Service struct {
	operators map[string]models.Operator
	tokens    TokenIssuer
	trl       TokenRevocationList
	audit     AuditPublisher
	logger    *slog.Logger
	TokenTTL  time.Duration

	// dummyHash is compared against when the email is unknown so response
	// time does not reveal which operators exist.
	dummyHash string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.TokenTTL = ttl
		}
	}
}

func New(operators []models.Operator, tokens TokenIssuer, trl TokenRevocationList, publisher AuditPublisher, opts ...Option) (*Service, error) {
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if trl == nil {
		return nil, errors.New("token revocation list is required")
	}
	if publisher == nil {
		return nil, errors.New("audit publisher is required")
	}
	dummy, err := secret.Hash("repairhub-unknown-operator")
	if err != nil {
		return nil, err
	}

	s := &Service{
		operators: make(map[string]models.Operator, len(operators)),
		tokens:    tokens,
		trl:       trl,
		audit:     publisher,
		logger:    slog.Default(),
		TokenTTL:  jwttoken.DefaultTTL,
		dummyHash: dummy,
	}
	for _, op := range operators {
		s.operators[op.Email] = op
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login exchanges an operator credential for a bearer token. Both outcomes
// are audited; a successful login whose audit record cannot be persisted is
// refused.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	op, known := s.operators[req.Email]
	hash := s.dummyHash
	if known {
		hash = op.PasswordHash
	}
	if err := secret.Verify(req.Password, hash); err != nil || !known {
		s.loginFailure(ctx, req.Email, "invalid_credentials")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}

	token, claims, err := s.tokens.GenerateToken(op.ID, op.Role, s.TokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	if _, err := s.audit.Append(ctx, audit.Record{
		Action:    audit.ActionAuthLogin,
		UserID:    op.ID,
		UserRole:  op.Role,
		Resource:  audit.ResourceAuthentication,
		Details:   map[string]any{"jti": claims.ID, "request_id": requestcontext.RequestID(ctx)},
		IPAddress: requestcontext.ClientIP(ctx),
		Status:    audit.StatusSuccess,
	}); err != nil {
		s.logger.ErrorContext(ctx, "login refused: audit record not persisted", "error", err, "user_id", op.ID)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login")
	}

	return &models.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.TokenTTL.Seconds()),
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) loginFailure(ctx context.Context, email, reason string) {
	s.logger.WarnContext(ctx, "operator login failed",
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	if _, err := s.audit.Append(ctx, audit.Record{
		Action:    audit.ActionAuthLogin,
		Resource:  audit.ResourceAuthentication,
		Details:   map[string]any{"email": sanitize.Input(email, maxLoggedEmail), "reason": reason},
		IPAddress: requestcontext.ClientIP(ctx),
		Status:    audit.StatusFailure,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to audit login failure", "error", err)
	}
}

// Logout revokes the token identified by jti until expiresAt, the token's own
// expiry. A zero expiresAt falls back to the issued-token TTL.
func (s *Service) Logout(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "token id required")
	}
	if err := s.trl.RevokeToken(ctx, jti, s.revocationTTL(ctx, expiresAt)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add token to revocation list")
	}

	userID := requestcontext.UserID(ctx)
	if _, err := s.audit.Append(ctx, audit.Record{
		Action:    audit.ActionAuthLogout,
		UserID:    userID,
		UserRole:  requestcontext.UserRole(ctx),
		Resource:  audit.ResourceAuthentication,
		Details:   map[string]any{"jti": jti},
		IPAddress: requestcontext.ClientIP(ctx),
		Status:    audit.StatusSuccess,
	}); err != nil {
		// The token is already revoked; the caller still learns the trail is behind.
		s.logger.ErrorContext(ctx, "failed to audit logout", "error", err, "user_id", userID)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record logout")
	}
	return nil
}

// revocationTTL covers the token's remaining lifetime. Validation leeway can
// let a token through just past its expiry, so the entry lives at least one
// second.
func (s *Service) revocationTTL(ctx context.Context, expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return s.TokenTTL
	}
	return max(expiresAt.Sub(requestcontext.Now(ctx)), minRevocationTTL)
}
