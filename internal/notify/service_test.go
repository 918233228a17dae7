package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yabodle/sitescan/internal/models"
	"github.com/yabodle/sitescan/internal/scoring"
)

type fakeAlertStore struct {
	users    []models.User
	alerted  map[string]bool
	recorded []string
}

func newFakeAlertStore(users ...models.User) *fakeAlertStore {
	return &fakeAlertStore{users: users, alerted: make(map[string]bool)}
}

func (s *fakeAlertStore) ListAlertUsers(context.Context) ([]models.User, error) {
	return s.users, nil
}

func (s *fakeAlertStore) WasAlerted(_ context.Context, userID, projectID uuid.UUID) (bool, error) {
	return s.alerted[userID.String()+projectID.String()], nil
}

func (s *fakeAlertStore) RecordAlert(_ context.Context, userID, projectID uuid.UUID, channel string) error {
	s.alerted[userID.String()+projectID.String()] = true
	s.recorded = append(s.recorded, channel)
	return nil
}

type captureSender struct {
	channel string
	sent    [][]*models.Project
	err     error
}

func (c *captureSender) Channel() string { return c.channel }

func (c *captureSender) Send(_ context.Context, _ models.User, projects []*models.Project) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, projects)
	return nil
}

func testProject(score int) *models.Project {
	return &models.Project{
		ID:         uuid.New(),
		SourceID:   "scbo",
		ExternalID: uuid.NewString(),
		Title:      "Historic Masonry Restoration",
		MatchScore: &score,
	}
}

func testUser(minScore int) models.User {
	return models.User{
		ID:            uuid.New(),
		Email:         "estimator@example.com",
		AlertsEnabled: true,
		MinMatchScore: minScore,
	}
}

func TestProcessMatchesRespectsThreshold(t *testing.T) {
	store := newFakeAlertStore(testUser(80))
	email := &captureSender{channel: ChannelEmail}
	svc := NewService(store, []Sender{email}, scoring.DefaultProfile(), zap.NewNop())

	svc.ProcessMatches(context.Background(), []*models.Project{
		testProject(92),
		testProject(75), // below the user's threshold
	})

	require.Len(t, email.sent, 1)
	require.Len(t, email.sent[0], 1)
	assert.Equal(t, 92, *email.sent[0][0].MatchScore)
}

func TestProcessMatchesDefaultThreshold(t *testing.T) {
	// A user with no configured threshold gets the profile default, not zero.
	store := newFakeAlertStore(testUser(0))
	email := &captureSender{channel: ChannelEmail}
	svc := NewService(store, []Sender{email}, scoring.DefaultProfile(), zap.NewNop())

	svc.ProcessMatches(context.Background(), []*models.Project{
		testProject(60),
		testProject(80),
	})

	require.Len(t, email.sent, 1)
	require.Len(t, email.sent[0], 1)
	assert.Equal(t, 80, *email.sent[0][0].MatchScore)
}

func TestProcessMatchesAlertsOnce(t *testing.T) {
	store := newFakeAlertStore(testUser(75))
	email := &captureSender{channel: ChannelEmail}
	svc := NewService(store, []Sender{email}, scoring.DefaultProfile(), zap.NewNop())

	p := testProject(90)
	svc.ProcessMatches(context.Background(), []*models.Project{p})
	svc.ProcessMatches(context.Background(), []*models.Project{p})

	assert.Len(t, email.sent, 1)
	assert.Equal(t, []string{ChannelEmail}, store.recorded)
}

func TestProcessMatchesDeliveryFailureNotRecorded(t *testing.T) {
	store := newFakeAlertStore(testUser(75))
	email := &captureSender{channel: ChannelEmail, err: errors.New("relay down")}
	svc := NewService(store, []Sender{email}, scoring.DefaultProfile(), zap.NewNop())

	svc.ProcessMatches(context.Background(), []*models.Project{testProject(90)})

	// Failed delivery must stay eligible for the next run.
	assert.Empty(t, store.recorded)
}

func TestProcessMatchesSMSRequiresOptIn(t *testing.T) {
	user := testUser(75)
	user.SMSEnabled = false
	store := newFakeAlertStore(user)
	sms := &captureSender{channel: ChannelSMS}
	svc := NewService(store, []Sender{sms}, scoring.DefaultProfile(), zap.NewNop())

	svc.ProcessMatches(context.Background(), []*models.Project{testProject(90)})
	assert.Empty(t, sms.sent)
}

func TestEmailSenderBuildsDigest(t *testing.T) {
	var gotTo []string
	var gotMsg []byte
	sender := NewEmailSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "alerts@example.com"})
	sender.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotTo = to
		gotMsg = msg
		return nil
	}

	user := testUser(75)
	err := sender.Send(context.Background(), user, []*models.Project{testProject(92)})
	require.NoError(t, err)

	assert.Equal(t, []string{user.Email}, gotTo)
	body := string(gotMsg)
	assert.Contains(t, body, "Subject: SiteScan: 1 new project match")
	assert.Contains(t, body, "Historic Masonry Restoration")
	assert.Contains(t, body, "92")
}

func TestTwilioSenderPostsForm(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b := make([]byte, r.ContentLength)
		r.Body.Read(b)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sender := NewTwilioSender(TwilioConfig{AccountSID: "AC123", AuthToken: "tok", FromNumber: "+18435550100"})
	sender.baseURL = srv.URL

	user := testUser(75)
	user.Phone = "+18435550199"
	err := sender.Send(context.Background(), user, []*models.Project{testProject(92)})
	require.NoError(t, err)

	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", gotPath)
	assert.Contains(t, gotBody, "To=%2B18435550199")
	assert.True(t, strings.Contains(gotBody, "Body="))
}

func TestRenderSMSCapsProjects(t *testing.T) {
	projects := []*models.Project{
		testProject(95), testProject(94), testProject(93), testProject(92), testProject(91),
	}
	msg := renderSMS(projects)
	assert.Contains(t, msg, "5 new matches")
	assert.Contains(t, msg, "...and 2 more")
}
