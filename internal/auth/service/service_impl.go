package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/counselops/letterflow/internal/auth/domain"
	"github.com/counselops/letterflow/internal/clock"
	"github.com/counselops/letterflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 8

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	sessionTTL time.Duration
}

func NewService(p Params) authdomain.Service {
	ttl := p.Cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("auth.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		sessionTTL: ttl,
	}
}

func (s *Service) Register(ctx context.Context, req authdomain.RegisterRequest) (*authdomain.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, authdomain.ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLen {
		return nil, authdomain.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &authdomain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Role:         authdomain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result := s.db.WithContext(ctx).Exec(
		`INSERT INTO users (id, email, password_hash, display_name, role, is_unlimited, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, FALSE, ?, ?)
		 ON CONFLICT (email) DO NOTHING`,
		user.ID, user.Email, user.PasswordHash, user.DisplayName, user.Role, now, now,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, authdomain.ErrEmailTaken
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, creds authdomain.Credentials) (*authdomain.Principal, error) {
	email := normalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, authdomain.ErrInvalidCredentials
	}

	var user authdomain.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Burn a comparison anyway so the response time does not reveal
		// whether the account exists.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(creds.Password))
		return nil, authdomain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) != nil {
		return nil, authdomain.ErrInvalidCredentials
	}

	now := s.clock.Now()
	session := &authdomain.Session{
		Token:     randomToken(),
		UserID:    user.ID,
		CSRFToken: randomToken(),
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}

	return &authdomain.Principal{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		CSRFToken: session.CSRFToken,
		Session:   session.Token,
	}, nil
}

func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	token := strings.TrimSpace(sessionToken)
	if token == "" {
		return authdomain.ErrSessionNotFound
	}
	return s.db.WithContext(ctx).
		Exec(`DELETE FROM sessions WHERE token = ?`, token).Error
}

func (s *Service) Verify(ctx context.Context, sessionToken string) (*authdomain.Principal, error) {
	token := strings.TrimSpace(sessionToken)
	if token == "" {
		return nil, authdomain.ErrSessionNotFound
	}

	var row struct {
		Token     string
		UserID    snowflake.ID
		CSRFToken string
		ExpiresAt time.Time
		Email     string
		Role      authdomain.Role
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT s.token, s.user_id, s.csrf_token, s.expires_at, u.email, u.role
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token = ?`,
		token,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Token == "" {
		return nil, authdomain.ErrSessionNotFound
	}
	if s.clock.Now().After(row.ExpiresAt) {
		// Expired sessions are reaped on sight.
		if err := s.db.WithContext(ctx).Exec(`DELETE FROM sessions WHERE token = ?`, token).Error; err != nil {
			s.log.Warn("expired session cleanup failed", zap.Error(err))
		}
		return nil, authdomain.ErrSessionExpired
	}

	return &authdomain.Principal{
		UserID:    row.UserID,
		Email:     row.Email,
		Role:      row.Role,
		CSRFToken: row.CSRFToken,
		Session:   row.Token,
	}, nil
}

var dummyHash = func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("letterflow-timing-pad"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return hash
}()

func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func normalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}
