package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/yabodle/sitescan/internal/models"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidCreds = errors.New("invalid credentials")

	jwtSecretOnce    sync.Once
	jwtSecretRuntime []byte
	jwtSecretErr     error
)

func jwtSecretFromEnv() ([]byte, error) {
	jwtSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
		if secret != "" {
			jwtSecretRuntime = []byte(secret)
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			jwtSecretErr = fmt.Errorf("failed to generate JWT fallback secret: %w", err)
			return
		}

		jwtSecretRuntime = []byte(base64.RawURLEncoding.EncodeToString(buf))
		zap.L().Warn("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if jwtSecretErr != nil {
		return nil, jwtSecretErr
	}
	if len(jwtSecretRuntime) == 0 {
		return nil, errors.New("JWT secret unavailable")
	}

	return jwtSecretRuntime, nil
}

// querier is the slice of pgxpool.Pool the service needs; tests substitute
// a mock pool.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Service struct {
	db querier
}

func NewService(db querier) *Service {
	return &Service{db: db}
}

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", req.Email).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	var user models.User
	err = s.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, email, COALESCE(phone, ''), alerts_enabled, sms_enabled, min_match_score, created_at
	`, req.Email, string(hash)).Scan(
		&user.ID, &user.Email, &user.Phone, &user.AlertsEnabled,
		&user.SMSEnabled, &user.MinMatchScore, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}

	token, err := generateToken(user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, User: user}, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var user models.User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, COALESCE(phone, ''), alerts_enabled, sms_enabled, min_match_score, created_at
		FROM users WHERE email = $1
	`, req.Email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Phone,
		&user.AlertsEnabled, &user.SMSEnabled, &user.MinMatchScore, &user.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrInvalidCreds
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCreds
	}

	token, err := generateToken(user.ID)
	if err != nil {
		return nil, err
	}

	// Clear hash before returning
	user.PasswordHash = ""
	return &AuthResponse{Token: token, User: user}, nil
}

// UpdatePreferences patches the user's alert settings. Nil fields are left
// untouched.
func (s *Service) UpdatePreferences(ctx context.Context, userID uuid.UUID, req PreferencesRequest) (*models.User, error) {
	if req.MinMatchScore != nil && (*req.MinMatchScore < 0 || *req.MinMatchScore > 99) {
		return nil, fmt.Errorf("min_match_score must be between 0 and 99")
	}

	var user models.User
	err := s.db.QueryRow(ctx, `
		UPDATE users SET
			phone = COALESCE($2, phone),
			alerts_enabled = COALESCE($3, alerts_enabled),
			sms_enabled = COALESCE($4, sms_enabled),
			min_match_score = COALESCE($5, min_match_score)
		WHERE id = $1
		RETURNING id, email, COALESCE(phone, ''), alerts_enabled, sms_enabled, min_match_score, created_at
	`, userID, req.Phone, req.AlertsEnabled, req.SMSEnabled, req.MinMatchScore).Scan(
		&user.ID, &user.Email, &user.Phone, &user.AlertsEnabled,
		&user.SMSEnabled, &user.MinMatchScore, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func generateToken(userID uuid.UUID) (string, error) {
	secretKey, err := jwtSecretFromEnv()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}

// Saved projects

func (s *Service) SaveProject(ctx context.Context, userID, projectID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO saved_projects (user_id, project_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, project_id) DO NOTHING
	`, userID, projectID)
	return err
}

func (s *Service) UnsaveProject(ctx context.Context, userID, projectID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM saved_projects
		WHERE user_id = $1 AND project_id = $2
	`, userID, projectID)
	return err
}

func (s *Service) GetSavedProjects(ctx context.Context, userID uuid.UUID) ([]models.Project, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.source_id, p.external_id, p.title,
		       COALESCE(p.agency, ''), COALESCE(p.location, ''),
		       p.category, p.status, COALESCE(p.source_status, ''), COALESCE(p.source_url, ''),
		       p.posted_date, p.due_date, p.estimated_value, p.match_score, p.is_active
		FROM projects p
		JOIN saved_projects sp ON p.id = sp.project_id
		WHERE sp.user_id = $1
		ORDER BY sp.saved_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		err := rows.Scan(
			&p.ID, &p.SourceID, &p.ExternalID, &p.Title, &p.Agency, &p.Location,
			&p.Category, &p.Status, &p.SourceStatus, &p.SourceURL,
			&p.PostedDate, &p.DueDate, &p.EstimatedValue, &p.MatchScore, &p.IsActive,
		)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
