package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that can query projects and receive alerts.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Phone         string    `json:"phone,omitempty"`
	AlertsEnabled bool      `json:"alerts_enabled"`
	SMSEnabled    bool      `json:"sms_enabled"`
	MinMatchScore int       `json:"min_match_score"`
	CreatedAt     time.Time `json:"created_at"`
}
