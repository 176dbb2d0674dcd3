package notification

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	// BaselineLimit caps the unread list replayed to a client on connect.
	BaselineLimit = 50
)

// Publisher pushes state changes to a user's live connections. Best effort.
type Publisher interface {
	PublishNew(userID int64, n Notification)
	PublishRead(userID int64, id string)
	PublishAllRead(userID int64)
}

type nopPublisher struct{}

func (nopPublisher) PublishNew(int64, Notification) {}
func (nopPublisher) PublishRead(int64, string)      {}
func (nopPublisher) PublishAllRead(int64)           {}

// CreateInput carries what a producer supplies; timestamps and read state are server-owned.
// ID is optional: producers that may deliver twice set a stable one, everything else gets a random id.
type CreateInput struct {
	ID        string
	Type      Type
	Title     string
	Message   string
	Priority  Priority
	Metadata  *Metadata
	ExpiresAt *time.Time
}

type Service struct {
	repo      *Repository
	publisher Publisher
	log       *zap.Logger
}

func NewService(repo *Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, publisher: nopPublisher{}, log: log}
}

// SetPublisher wires live delivery. The hub needs the service too, so this is set after construction.
func (s *Service) SetPublisher(p Publisher) {
	if p == nil {
		p = nopPublisher{}
	}
	s.publisher = p
}

// Create stores the notification first and only then pushes it, so a failed push never loses it.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*Notification, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	if !in.Type.Valid() {
		return nil, ErrInvalidType
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrEmptyTitle
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	n := &Notification{
		ID:        id,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		Priority:  in.Priority,
		Metadata:  in.Metadata,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: in.ExpiresAt,
	}
	if err := s.repo.Create(ctx, userID, n); err != nil {
		return nil, err
	}

	s.publisher.PublishNew(userID, *n)
	s.log.Debug("notification created",
		zap.Int64("user_id", userID),
		zap.String("notification_id", n.ID),
		zap.String("type", string(n.Type)),
	)
	return n, nil
}

func (s *Service) List(ctx context.Context, userID int64, limit, offset int) ([]Notification, int64, int64, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	offset = max(offset, 0)

	list, total, err := s.repo.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, 0, err
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		s.log.Warn("count unread failed", zap.Int64("user_id", userID), zap.Error(err))
		unread = 0
	}
	return list, unread, total, nil
}

// Baseline returns what a freshly connected client hydrates from.
func (s *Service) Baseline(ctx context.Context, userID int64) ([]Notification, int64, error) {
	list, err := s.repo.ListUnread(ctx, userID, BaselineLimit)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return list, count, nil
}

func (s *Service) GetUnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *Service) MarkAsRead(ctx context.Context, userID int64, id string) error {
	if err := s.repo.MarkAsRead(ctx, userID, id); err != nil {
		return err
	}
	s.publisher.PublishRead(userID, id)
	return nil
}

func (s *Service) MarkAllAsRead(ctx context.Context, userID int64) error {
	if _, err := s.repo.MarkAllAsRead(ctx, userID); err != nil {
		return err
	}
	s.publisher.PublishAllRead(userID)
	return nil
}

func (s *Service) Delete(ctx context.Context, userID int64, id string) error {
	return s.repo.Delete(ctx, userID, id)
}

func (s *Service) Archive(ctx context.Context, userID int64, id string) error {
	return s.repo.Archive(ctx, userID, id)
}
