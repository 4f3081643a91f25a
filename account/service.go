package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/password"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithSessions sets what Delete invalidates once the user's sessions are
// gone.
func WithSessions(sessions SessionInvalidator) ServiceOption {
	return func(s *Service) { s.sessions = sessions }
}

// SessionInvalidator drops cached copies of session rows.
type SessionInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Service implements the account operations.
type Service struct {
	store    Store
	hasher   *password.Hasher
	config   rvoc.Config
	limits   Limits
	sessions SessionInvalidator
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service.
func NewService(store Store, hasher *password.Hasher, config rvoc.Config, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  store,
		hasher: hasher,
		config: config,
		limits: Limits{
			MaxAttempts:       config.Login.MaxAttemptsPerInterval,
			MaxFailedAttempts: config.Login.MaxFailedAttemptsPerInterval,
			Interval:          config.Login.CountingInterval,
		},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup creates an account.
func (s *Service) Signup(ctx context.Context, name, plaintext string) error {
	if err := s.config.VerifyUsername(name); err != nil {
		return err
	}
	if err := s.config.VerifyPassword(plaintext); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return err
	}
	if err := s.store.CreateUser(ctx, name, hash, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info("user signed up", slog.String("username", name))
	return nil
}

// Login checks credentials. Unknown users and wrong passwords both yield
// rvoc.ErrInvalidCredentials; an exhausted window yields
// rvoc.ErrLoginRateLimited.
func (s *Service) Login(ctx context.Context, name, plaintext string) error {
	if err := s.config.VerifyUsername(name); err != nil {
		return rvoc.ErrInvalidCredentials
	}

	err := s.store.UpdateLoginInfo(ctx, name, func(info *LoginInfo) error {
		if !info.TryAttempt(s.now().UTC(), s.limits) {
			return rvoc.ErrLoginRateLimited
		}
		res, err := s.hasher.Verify(plaintext, info.PasswordHash)
		if err != nil {
			return err
		}
		if !res.Matches {
			info.FailAttempt()
			return rvoc.ErrInvalidCredentials
		}
		if res.RehashRecommended {
			hash, err := s.hasher.Hash(plaintext)
			if err != nil {
				return err
			}
			info.PasswordHash = hash
		}
		return nil
	})

	switch {
	case err == nil:
		s.logger.Info("user logged in", slog.String("username", name))
		return nil
	case errors.Is(err, rvoc.ErrUserNotFound):
		s.logger.Info("login for unknown user", slog.String("username", name))
		return rvoc.ErrInvalidCredentials
	case errors.Is(err, rvoc.ErrInvalidCredentials):
		s.logger.Info("wrong password", slog.String("username", name))
		return err
	case errors.Is(err, rvoc.ErrLoginRateLimited):
		s.logger.Warn("login rate limit reached", slog.String("username", name))
		return err
	default:
		return fmt.Errorf("login: %w", err)
	}
}

// SetPassword replaces a user's password.
func (s *Service) SetPassword(ctx context.Context, name, plaintext string) error {
	if err := s.config.VerifyPassword(plaintext); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return err
	}
	return s.store.SetPasswordHash(ctx, name, hash)
}

// ExpireAllPasswords forces every user to set a new password.
func (s *Service) ExpireAllPasswords(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireAllPasswords(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("expired all passwords", slog.Int64("users", n))
	return n, nil
}

// Get returns a user.
func (s *Service) Get(ctx context.Context, name string) (*User, error) {
	return s.store.GetUser(ctx, name)
}

// Delete removes an account and its sessions.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.store.DeleteUser(ctx, name); err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.String("username", name))

	// The store drops the sessions with the user, behind any session cache.
	if s.sessions != nil {
		if err := s.sessions.Invalidate(ctx); err != nil {
			s.logger.Warn("session invalidation after user deletion failed",
				slog.String("username", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
