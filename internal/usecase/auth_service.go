package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/infrastructure/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier is the collaborator supplied by the authentication
// subsystem. The core only needs these two resolutions.
type CredentialVerifier interface {
	VerifyPassword(ctx context.Context, usernameOrEmail, password string) (string, error)
	VerifyToken(ctx context.Context, token string) (string, error)
}

// Credentials carries whichever scheme the request presented.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// AuthService resolves inbound credentials to a principal id. It is
// stateless and never consults role data.
type AuthService struct {
	verifier CredentialVerifier
	log      *zap.Logger
}

func NewAuthService(verifier CredentialVerifier, log *zap.Logger) *AuthService {
	return &AuthService{
		verifier: verifier,
		log:      log,
	}
}

func (s *AuthService) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	switch {
	case creds.Token != "":
		principal, err := s.verifier.VerifyToken(ctx, creds.Token)
		if err != nil {
			s.log.Debug("token verification failed", zap.Error(err))
			return "", WrapError(ErrAuthenticationRequired, err)
		}
		return principal, nil

	case creds.Username != "":
		principal, err := s.verifier.VerifyPassword(ctx, creds.Username, creds.Password)
		if err != nil {
			s.log.Debug("password verification failed",
				zap.String("login", creds.Username),
				zap.Error(err),
			)
			return "", WrapError(ErrAuthenticationRequired, err)
		}
		return principal, nil

	default:
		return "", ErrAuthenticationRequired
	}
}

type userReader interface {
	GetByLogin(ctx context.Context, usernameOrEmail string) (*domain.User, error)
	GetByTokenDigest(ctx context.Context, digest string) (*domain.User, error)
}

var errBadCredentials = errors.New("bad credentials")

// DBVerifier is the default CredentialVerifier backed by the users and
// access_tokens tables.
type DBVerifier struct {
	users userReader
}

func NewDBVerifier(users userReader) *DBVerifier {
	return &DBVerifier{users: users}
}

func (v *DBVerifier) VerifyPassword(ctx context.Context, usernameOrEmail, password string) (string, error) {
	user, err := v.users.GetByLogin(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", errBadCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", errBadCredentials
	}
	return user.Id, nil
}

func (v *DBVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	digest := sha256.Sum256([]byte(token))
	user, err := v.users.GetByTokenDigest(ctx, hex.EncodeToString(digest[:]))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", errBadCredentials
		}
		return "", err
	}
	return user.Id, nil
}
