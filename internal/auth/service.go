package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/copassenger-api/internal/data"
	"github.com/PaulBabatuyi/copassenger-api/internal/logger"
	"github.com/PaulBabatuyi/copassenger-api/internal/normalize"
	"github.com/PaulBabatuyi/copassenger-api/internal/validate"
)

// Password length bounds. bcrypt ignores input beyond 72 bytes.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrValidation         = errors.New("invalid credentials input")
)

// UserRepository is the persistence the credential service needs.
// *data.UsersStore implements it.
type UserRepository interface {
	CreateUser(ctx context.Context, fullName, email, hashedPassword string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	UpdatePassword(ctx context.Context, id bson.ObjectID, hashedPassword string) error
}

// PublicUser is the profile shape safe to return to clients.
type PublicUser struct {
	ID              string `json:"id"`
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	ProfileImageURL string `json:"profileImageURL"`
}

// NewPublicUser strips the password hash from u.
func NewPublicUser(u *data.User) *PublicUser {
	return &PublicUser{
		ID:              u.ID.Hex(),
		FullName:        u.FullName,
		Email:           u.Email,
		Role:            string(u.Role),
		ProfileImageURL: u.ProfileImageURL,
	}
}

// Service implements signup, login, token verification and password changes.
type Service struct {
	users UserRepository
	jwt   *JWTManager
	log   *zap.SugaredLogger
}

// NewService returns a Service.
func NewService(users UserRepository, jwt *JWTManager, log *zap.SugaredLogger) *Service {
	return &Service{users: users, jwt: jwt, log: logger.OrNop(log)}
}

// CreateUser registers a new account. The caller logs in separately.
func (s *Service) CreateUser(ctx context.Context, fullName, email, password string) (*PublicUser, error) {
	fullName = normalize.FullName(fullName)
	email = normalize.Email(email)

	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrValidation)
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.CreateUser(ctx, fullName, email, hash)
	if err != nil {
		if errors.Is(err, data.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	s.log.Infow("user created", "user_id", u.ID.Hex())
	return NewPublicUser(u), nil
}

// Authenticate checks credentials and issues a token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, *PublicUser, error) {
	email = normalize.Email(email)
	if email == "" || password == "" {
		return "", nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return "", nil, ErrUserNotFound
		}
		return "", nil, err
	}

	if !matches(u.Password, password) {
		return "", nil, ErrInvalidCredentials
	}

	token, _, err := s.jwt.GenerateToken(u.ID, u.Email, u.FullName, string(u.Role))
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, NewPublicUser(u), nil
}

// VerifyToken validates a bearer token.
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.jwt.VerifyToken(token)
}

// Profile returns the current user's public profile.
func (s *Service) Profile(ctx context.Context, userID string) (*PublicUser, error) {
	u, err := s.lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewPublicUser(u), nil
}

// ChangePassword replaces the password after checking the current one.
// bcrypt salts every hash, so the new hash never reuses the old salt.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.lookup(ctx, userID)
	if err != nil {
		return err
	}
	if !matches(u.Password, current) {
		return ErrInvalidCredentials
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.log.Infow("password changed", "user_id", userID)
	return nil
}

// matches reports whether password is the one hashed in hash. bcrypt only
// reads the first MaxPasswordLength bytes, so anything longer can never be
// the stored password.
func matches(hash, password string) bool {
	if len(password) > MaxPasswordLength {
		return false
	}
	return CheckPassword(hash, password) == nil
}

func (s *Service) lookup(ctx context.Context, userID string) (*data.User, error) {
	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func validateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	// accounts need a routable domain, never a bare host
	if !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	return nil
}

func validatePassword(p string) error {
	if err := validate.Var(p, fmt.Sprintf("min=%d", MinPasswordLength)); err != nil {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	// the bound is in bytes, which is what bcrypt reads
	if len(p) > MaxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, MaxPasswordLength)
	}
	return nil
}
