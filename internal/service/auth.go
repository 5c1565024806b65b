package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/canopyhq/canopy/internal/config"
	"github.com/canopyhq/canopy/internal/domain"
	"github.com/canopyhq/canopy/internal/domain/capability"
	"github.com/canopyhq/canopy/internal/domain/user"
	"github.com/canopyhq/canopy/internal/port/mailer"
)

const tokenIssuer = "canopy"

// ErrInvalidCredentials is returned for any login failure. The reason is
// deliberately not distinguished.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService handles passwordless login: pending signups, single-use
// magic links, and the JWTs that carry a session's capability context.
type AuthService struct {
	gate   *Gate
	cfg    *config.Auth
	secret []byte
	mail   mailer.Mailer
	log    *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(gate *Gate, cfg *config.Auth, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		gate:   gate,
		cfg:    cfg,
		secret: []byte(cfg.JWTSecret),
		mail:   mailer.Noop{},
		log:    log,
	}
}

// SetMailer installs the outbound mailer used for magic-link delivery.
func (s *AuthService) SetMailer(m mailer.Mailer) {
	if m != nil {
		s.mail = m
	}
}

// LookupUser returns the account registered under email. Callable without
// a capability set: the login flow runs before one exists.
func (s *AuthService) LookupUser(ctx context.Context, email string) (*user.User, error) {
	var u user.User
	if err := s.gate.ReadJSON(ctx, userByEmailPath(normalizeEmail(email)), nil, &u, nil); err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveUser writes an account record. Requires user management capability.
func (s *AuthService) SaveUser(ctx context.Context, caps capability.Capability, u *user.User) error {
	u.Email = normalizeEmail(u.Email)
	u.UpdatedAt = time.Now().UTC()
	return s.gate.WriteJSON(ctx, userByEmailPath(u.Email), caps, u, nil)
}

// UpdateUser applies an administrator's changes to an account.
func (s *AuthService) UpdateUser(ctx context.Context, caps capability.Capability, email string, req user.UpdateRequest) (*user.User, error) {
	u, err := s.LookupUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if req.Name != "" {
		u.Name = req.Name
	}
	if req.Role != "" {
		u.Role = req.Role
	}
	if req.TierKey != "" {
		u.TierKey = req.TierKey
	}
	if req.Enabled != nil {
		u.Enabled = *req.Enabled
	}
	if err := s.SaveUser(ctx, caps, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser removes an account record.
func (s *AuthService) DeleteUser(ctx context.Context, caps capability.Capability, email string) error {
	return s.gate.DeleteFile(ctx, userByEmailPath(normalizeEmail(email)), caps, nil)
}

// ListUsers returns every account record.
func (s *AuthService) ListUsers(ctx context.Context, caps capability.Capability) ([]user.User, error) {
	objects, err := s.gate.ListFiles(ctx, rootUsers+"by-email/", caps, nil)
	if err != nil {
		return nil, err
	}
	out := make([]user.User, 0, len(objects))
	for _, o := range objects {
		var u user.User
		if err := s.gate.ReadJSON(ctx, o.Key, caps, &u, nil); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// RequestSignup records a signup awaiting approval. Open to anonymous
// callers; an email already holding an account is rejected.
func (s *AuthService) RequestSignup(ctx context.Context, req *user.PendingSignup) error {
	if err := req.Validate(); err != nil {
		verr := &domain.ValidationError{}
		verr.Add("signup", err.Error())
		return verr
	}
	req.Email = normalizeEmail(req.Email)

	if _, err := s.LookupUser(ctx, req.Email); err == nil {
		return fmt.Errorf("account for %s: %w", req.Email, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	req.CreatedAt = time.Now().UTC()
	return s.gate.WriteJSON(ctx, pendingSignupPath(req.Email), nil, req, nil)
}

// ListPendingSignups returns every signup awaiting approval.
func (s *AuthService) ListPendingSignups(ctx context.Context, caps capability.Capability) ([]user.PendingSignup, error) {
	objects, err := s.gate.ListFiles(ctx, rootAuth+"pending-signups/", caps, nil)
	if err != nil {
		return nil, err
	}
	out := make([]user.PendingSignup, 0, len(objects))
	for _, o := range objects {
		var p user.PendingSignup
		if err := s.gate.ReadJSON(ctx, o.Key, caps, &p, nil); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ApproveSignup converts a pending signup into an account and removes the
// pending record.
func (s *AuthService) ApproveSignup(ctx context.Context, caps capability.Capability, email string, role capability.Role) (*user.User, error) {
	email = normalizeEmail(email)
	var pending user.PendingSignup
	if err := s.gate.ReadJSON(ctx, pendingSignupPath(email), caps, &pending, nil); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u := &user.User{
		ID:             uuid.New(),
		Email:          email,
		Name:           pending.Name,
		Role:           role,
		OrganizationID: pending.OrganizationID,
		TierKey:        pending.RequestedTierKey,
		Enabled:        true,
		CreatedAt:      now,
	}
	if err := s.SaveUser(ctx, caps, u); err != nil {
		return nil, err
	}
	if err := s.gate.DeleteFile(ctx, pendingSignupPath(email), caps, nil); err != nil {
		s.log.Warn("approved signup record not removed", "email", email, "error", err)
	}
	return u, nil
}

// RejectSignup discards a pending signup.
func (s *AuthService) RejectSignup(ctx context.Context, caps capability.Capability, email string) error {
	return s.gate.DeleteFile(ctx, pendingSignupPath(normalizeEmail(email)), caps, nil)
}

// IssueMagicLink creates a single-use login link for an existing enabled
// account. The returned secret appears only in the emailed URL; storage
// holds its bcrypt hash.
func (s *AuthService) IssueMagicLink(ctx context.Context, email string) (tokenID, secret string, err error) {
	u, err := s.LookupUser(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}
	if !u.Enabled {
		return "", "", ErrInvalidCredentials
	}

	secret, err = generateRandomToken(32)
	if err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cfg.BcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("hash secret: %w", err)
	}

	link := user.MagicLink{
		TokenID:    uuid.NewString(),
		Email:      u.Email,
		SecretHash: string(hash),
		ExpiresAt:  time.Now().UTC().Add(s.cfg.MagicLinkTTL),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.gate.WriteJSON(ctx, magicLinkPath(link.TokenID), systemCaps(), link, nil); err != nil {
		return "", "", err
	}
	return link.TokenID, secret, nil
}

// SendMagicLink issues a login link and emails it. Failures that would
// reveal whether an account exists are reported as ErrInvalidCredentials;
// callers answering HTTP should mask those as success.
func (s *AuthService) SendMagicLink(ctx context.Context, email string) error {
	tokenID, secret, err := s.IssueMagicLink(ctx, email)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s?token=%s&secret=%s", s.cfg.VerifyURL, tokenID, secret)
	body := fmt.Sprintf(`<p>Click the link below to sign in. It can be used once and expires in %s.</p>
<p><a href="%s">Sign in</a></p>`, s.cfg.MagicLinkTTL, url)

	if err := s.mail.Send(ctx, email, "Your sign-in link", body); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}
	return nil
}

// VerifyMagicLink consumes a login link and returns the account it was
// issued for. The link is deleted whether the secret matches or not: one
// attempt per link.
func (s *AuthService) VerifyMagicLink(ctx context.Context, tokenID, secret string) (*user.User, error) {
	var link user.MagicLink
	if err := s.gate.ReadJSON(ctx, magicLinkPath(tokenID), nil, &link, nil); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.gate.DeleteFile(ctx, magicLinkPath(tokenID), nil, nil); err != nil {
		s.log.Warn("magic link not consumed", "token_id", tokenID, "error", err)
	}

	if link.Expired(time.Now().UTC()) {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(link.SecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidCredentials
	}

	u, err := s.LookupUser(ctx, link.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Enabled {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Claims is the JWT payload. It carries exactly what NewSet needs to
// rebuild the session's capability context.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Role    string `json:"role"`
	OrgID   string `json:"org_id,omitempty"`
	TierKey string `json:"tier_key,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an access token for an authenticated account.
func (s *AuthService) IssueToken(u *user.User) (string, time.Time, error) {
	now := time.Now().UTC()
	expires := now.Add(s.cfg.AccessTokenTTL)
	claims := Claims{
		Name:    u.Name,
		Role:    string(u.Role),
		TierKey: u.TierKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   u.Email,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if u.OrganizationID != nil {
		claims.OrgID = u.OrganizationID.String()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expires, nil
}

// ValidateToken verifies an access token and rebuilds its capability set.
func (s *AuthService) ValidateToken(tokenStr string) (*capability.Set, *Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}

	var orgID *uuid.UUID
	if claims.OrgID != "" {
		id, err := uuid.Parse(claims.OrgID)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid org id claim: %w", err)
		}
		orgID = &id
	}
	return capability.NewSet(capability.Role(claims.Role), orgID, claims.TierKey, claims.Subject), claims, nil
}

// SeedDefaultAdmin creates the configured admin account when no users
// exist yet. Login still goes through a magic link; no password is set.
func (s *AuthService) SeedDefaultAdmin(ctx context.Context) error {
	if s.cfg.DefaultAdminEmail == "" {
		return nil
	}
	objects, err := s.gate.ListFiles(ctx, rootUsers+"by-email/", systemCaps(), nil)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(objects) > 0 {
		return nil
	}

	now := time.Now().UTC()
	u := &user.User{
		ID:        uuid.New(),
		Email:     normalizeEmail(s.cfg.DefaultAdminEmail),
		Name:      "Admin",
		Role:      capability.RoleAdmin,
		Enabled:   true,
		CreatedAt: now,
	}
	if err := s.SaveUser(ctx, systemCaps(), u); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	s.log.Info("seeded default admin account", "email", u.Email)
	return nil
}

// StartLinkCleanup purges expired magic links on an interval until ctx is
// cancelled.
func (s *AuthService) StartLinkCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.purgeExpiredLinks(ctx); err != nil {
					s.log.Warn("magic link cleanup failed", "error", err)
				} else if n > 0 {
					s.log.Info("purged expired magic links", "count", n)
				}
			}
		}
	}()
}

func (s *AuthService) purgeExpiredLinks(ctx context.Context) (int, error) {
	objects, err := s.gate.ListFiles(ctx, rootAuth+"magic-links/", systemCaps(), nil)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	purged := 0
	for _, o := range objects {
		var link user.MagicLink
		if err := s.gate.ReadJSON(ctx, o.Key, systemCaps(), &link, nil); err != nil {
			continue
		}
		if link.Expired(now) {
			if err := s.gate.DeleteFile(ctx, o.Key, systemCaps(), nil); err == nil {
				purged++
			}
		}
	}
	return purged, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
