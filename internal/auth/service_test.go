package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupFreshUserWithNullPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := NewService(mock)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("mason@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	// A fresh insert leaves phone NULL; the query must coalesce it so the
	// scan into a plain string succeeds.
	mock.ExpectQuery(`RETURNING id, email, COALESCE\(phone, ''\)`).
		WithArgs("mason@example.com", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "email", "phone", "alerts_enabled", "sms_enabled", "min_match_score", "created_at"}).
			AddRow(uuid.New(), "mason@example.com", "", true, false, 75, time.Now()))

	resp, err := svc.Signup(context.Background(), SignupRequest{
		Email:    "mason@example.com",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "mason@example.com", resp.User.Email)
	assert.Empty(t, resp.User.Phone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupExistingUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := NewService(mock)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("taken@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	_, err = svc.Signup(context.Background(), SignupRequest{
		Email:    "taken@example.com",
		Password: "correct-horse-battery",
	})
	assert.ErrorIs(t, err, ErrUserExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSavedProjectsCoalescesNullColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := NewService(mock)
	userID := uuid.New()

	cols := []string{
		"id", "source_id", "external_id", "title", "agency", "location",
		"category", "status", "source_status", "source_url",
		"posted_date", "due_date", "estimated_value", "match_score", "is_active",
	}
	mock.ExpectQuery(`COALESCE\(p\.agency, ''\)`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			uuid.New(), "city_bids", "24-B017", "Seawall repair",
			"", "", "government", "new", "", "",
			time.Now(), nil, nil, nil, true))

	projects, err := svc.GetSavedProjects(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Seawall repair", projects[0].Title)
	assert.Empty(t, projects[0].Agency)
	assert.Nil(t, projects[0].DueDate)
	require.NoError(t, mock.ExpectationsWereMet())
}
