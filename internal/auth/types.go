package auth

import "github.com/yabodle/sitescan/internal/models"

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// PreferencesRequest updates a user's alert settings. Pointer fields are
// optional; nil means leave unchanged.
type PreferencesRequest struct {
	Phone         *string `json:"phone"`
	AlertsEnabled *bool   `json:"alerts_enabled"`
	SMSEnabled    *bool   `json:"sms_enabled"`
	MinMatchScore *int    `json:"min_match_score"`
}
