package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yabodle/sitescan/internal/models"
)

// ListAlertUsers returns users who have opted into alerts.
func (s *Store) ListAlertUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, COALESCE(phone, ''), alerts_enabled, sms_enabled, min_match_score, created_at
		FROM users
		WHERE alerts_enabled = TRUE
	`)
	if err != nil {
		return nil, fmt.Errorf("list alert users failed: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Phone, &u.AlertsEnabled, &u.SMSEnabled, &u.MinMatchScore, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("alert user row failed: %w", err)
		}
		u.AlertsEnabled = true
		users = append(users, u)
	}
	return users, rows.Err()
}

// WasAlerted reports whether a user already received an alert for a project.
func (s *Store) WasAlerted(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM alert_history WHERE user_id = $1 AND project_id = $2)",
		userID, projectID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("alert history lookup failed: %w", err)
	}
	return exists, nil
}

// RecordAlert stores a delivered alert so the same project is not re-sent.
func (s *Store) RecordAlert(ctx context.Context, userID, projectID uuid.UUID, channel string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_history (user_id, project_id, channel)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, project_id) DO NOTHING
	`, userID, projectID, channel)
	if err != nil {
		return fmt.Errorf("record alert failed: %w", err)
	}
	return nil
}
