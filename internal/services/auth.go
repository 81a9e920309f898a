package services

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/data/repos"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type AuthService interface {
	Register(ctx context.Context, email, password, displayName string) (*types.User, error)
	Login(ctx context.Context, email, password string) (string, *types.User, error)
	VerifyToken(ctx context.Context, tokenString string) (uuid.UUID, error)
	AccessTTL() time.Duration
}

type authService struct {
	db        *gorm.DB
	log       *logger.Logger
	userRepo  repos.UserRepo
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(db *gorm.DB, baseLog *logger.Logger, userRepo repos.UserRepo, jwtSecret string, accessTTL time.Duration) AuthService {
	return &authService{
		db:        db,
		log:       baseLog.With("service", "AuthService"),
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
	}
}

func (s *authService) Register(ctx context.Context, email, password, displayName string) (*types.User, error) {
	const op = "AuthService.Register"
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, types.NewError(types.CodeValidation, op, "valid email required", nil)
	}
	if len(password) < 8 {
		return nil, types.NewError(types.CodeValidation, op, "password must be at least 8 characters", nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, types.WrapError(types.CodeInternal, op, err)
	}
	user := &types.User{
		Email:       email,
		Password:    string(hash),
		DisplayName: strings.TrimSpace(displayName),
	}
	created, err := s.userRepo.Create(dbctx.New(ctx), []*types.User{user})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *types.User, error) {
	const op = "AuthService.Login"
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.userRepo.GetByEmail(dbctx.New(ctx), email)
	if err != nil {
		if types.IsCode(err, types.CodeNotFound) {
			return "", nil, types.NewError(types.CodeUnauthorized, op, "invalid credentials", nil)
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, types.NewError(types.CodeUnauthorized, op, "invalid credentials", nil)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, types.WrapError(types.CodeInternal, op, err)
	}
	return token, user, nil
}

func (s *authService) VerifyToken(ctx context.Context, tokenString string) (uuid.UUID, error) {
	const op = "AuthService.VerifyToken"
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, types.NewError(types.CodeUnauthorized, op, "invalid token", err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, types.NewError(types.CodeUnauthorized, op, "invalid token claims", nil)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, types.NewError(types.CodeUnauthorized, op, "invalid token subject", err)
	}
	if _, err := s.userRepo.GetByID(dbctx.New(ctx), userID); err != nil {
		return uuid.Nil, types.NewError(types.CodeUnauthorized, op, "unknown user", err)
	}
	return userID, nil
}

func (s *authService) AccessTTL() time.Duration { return s.accessTTL }
