package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/timecards/internal/crypto"
	"github.com/and161185/timecards/internal/errs"
	"github.com/and161185/timecards/internal/limiter"
	"github.com/and161185/timecards/internal/metrics"
	"github.com/and161185/timecards/internal/model"
	"github.com/and161185/timecards/internal/repository"
)

// AuthService registers resources and issues access tokens for them.
type AuthService interface {
	// Register creates a resource account and returns its resource number.
	Register(ctx context.Context, username, password string) (resource int, err error)
	// Login applies rate limiting per (username, client) and authenticates.
	Login(ctx context.Context, username, password, client string) (model.Tokens, model.Account, error)
	// Resource validates an access token and returns its subject.
	Resource(token string) (int, error)
}

type AuthServiceImpl struct {
	accounts  repository.AccountRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	hash      pkgcrypto.Params
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewAuthService constructs AuthService with required dependencies. m may be nil.
func NewAuthService(accounts repository.AccountRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter, m *metrics.Metrics) *AuthServiceImpl {
	return &AuthServiceImpl{
		accounts:  accounts,
		signKey:   signKey,
		accessTTL: accessTTL,
		lim:       lim,
		hash:      pkgcrypto.DefaultParams,
		metrics:   m,
		now:       time.Now,
	}
}

// WithHashParams overrides the Argon2id parameters.
func (s *AuthServiceImpl) WithHashParams(p pkgcrypto.Params) *AuthServiceImpl {
	s.hash = p
	return s
}

// Register creates a new account with a per-account salt.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (int, error) {
	if username == "" || password == "" {
		return 0, fmt.Errorf("%w: empty username/password", errs.ErrValidation)
	}
	hash, salt, err := s.hash.Hash(password)
	if err != nil {
		return 0, err
	}
	a := &model.Account{Username: username, PwdHash: hash, SaltAuth: salt}
	if err := s.accounts.Create(ctx, a); err != nil {
		return 0, err
	}
	return a.Resource, nil
}

// Login authenticates with rate limiting by (username, client).
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, client string) (model.Tokens, model.Account, error) {
	key := limiter.HashClient(client)

	allowed, _, err := s.lim.Allow(ctx, username, key)
	if err != nil {
		return model.Tokens{}, model.Account{}, err
	}
	if !allowed {
		return model.Tokens{}, model.Account{}, errs.ErrRateLimited
	}

	a, err := s.accounts.GetByUsername(ctx, username)
	if err != nil || !s.hash.Verify(password, a.SaltAuth, a.PwdHash) {
		s.metrics.IncLoginFailures()
		if blocked, _, ferr := s.lim.Failure(ctx, username, key); ferr == nil && blocked {
			return model.Tokens{}, model.Account{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Tokens{}, model.Account{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, username, key)

	tok, err := s.issueAccessToken(a.Resource)
	if err != nil {
		return model.Tokens{}, model.Account{}, err
	}
	return tok, *a, nil
}

// Resource parses an HS256 access token and returns the resource in its subject.
func (s *AuthServiceImpl) Resource(token string) (int, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.signKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return 0, errs.ErrUnauthorized
	}
	resource, err := strconv.Atoi(claims.Subject)
	if err != nil || resource <= 0 {
		return 0, errs.ErrUnauthorized
	}
	return resource, nil
}

// issueAccessToken creates a signed HS256 JWT for the given resource.
func (s *AuthServiceImpl) issueAccessToken(resource int) (model.Tokens, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(resource),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}
