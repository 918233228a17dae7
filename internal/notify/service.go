// Package notify delivers alerts for high-scoring projects over email and
// SMS. Each (user, project, channel) pair is alerted at most once.
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yabodle/sitescan/internal/models"
	"github.com/yabodle/sitescan/internal/scoring"
)

// AlertStore is the persistence surface for alert bookkeeping.
type AlertStore interface {
	ListAlertUsers(ctx context.Context) ([]models.User, error)
	WasAlerted(ctx context.Context, userID, projectID uuid.UUID) (bool, error)
	RecordAlert(ctx context.Context, userID, projectID uuid.UUID, channel string) error
}

// Sender delivers one digest of projects to one user over a single channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, user models.User, projects []*models.Project) error
}

// Service fans matched projects out to subscribed users.
type Service struct {
	store   AlertStore
	senders []Sender
	profile scoring.Profile
	log     *zap.Logger
}

func NewService(store AlertStore, senders []Sender, profile scoring.Profile, log *zap.Logger) *Service {
	return &Service{store: store, senders: senders, profile: profile, log: log}
}

// ProcessMatches alerts every subscribed user about projects at or above
// their personal threshold. Delivery failures are logged, never propagated;
// the scan that produced the matches has already succeeded.
func (s *Service) ProcessMatches(ctx context.Context, projects []*models.Project) {
	if len(s.senders) == 0 || len(projects) == 0 {
		return
	}

	users, err := s.store.ListAlertUsers(ctx)
	if err != nil {
		s.log.Error("list alert users failed", zap.Error(err))
		return
	}

	for _, user := range users {
		s.processUser(ctx, user, projects)
	}
}

func (s *Service) processUser(ctx context.Context, user models.User, projects []*models.Project) {
	threshold := scoring.ProfileFor(s.profile, user.MinMatchScore).AlertThreshold

	var fresh []*models.Project
	for _, p := range projects {
		if p.MatchScore == nil || *p.MatchScore < threshold {
			continue
		}
		alerted, err := s.store.WasAlerted(ctx, user.ID, p.ID)
		if err != nil {
			s.log.Warn("alert history lookup failed", zap.Error(err))
			continue
		}
		if alerted {
			continue
		}
		fresh = append(fresh, p)
	}
	if len(fresh) == 0 {
		return
	}

	for _, sender := range s.senders {
		if !channelEnabled(user, sender.Channel()) {
			continue
		}
		if err := sender.Send(ctx, user, fresh); err != nil {
			s.log.Error("alert delivery failed",
				zap.String("channel", sender.Channel()),
				zap.String("user", user.Email),
				zap.Error(err))
			continue
		}
		observeAlertsSent(sender.Channel(), len(fresh))
		for _, p := range fresh {
			if err := s.store.RecordAlert(ctx, user.ID, p.ID, sender.Channel()); err != nil {
				s.log.Warn("record alert failed", zap.Error(err))
			}
		}
	}
}

func channelEnabled(user models.User, channel string) bool {
	switch channel {
	case ChannelEmail:
		return user.AlertsEnabled
	case ChannelSMS:
		return user.AlertsEnabled && user.SMSEnabled && user.Phone != ""
	default:
		return false
	}
}

// Delivery channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)
