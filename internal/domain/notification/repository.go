package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Record is the persisted form of a notification.
type Record struct {
	ID         string     `gorm:"column:id;primaryKey;size:36"`
	UserID     int64      `gorm:"column:user_id;index:idx_notifications_user_unread"`
	Type       string     `gorm:"column:type;size:64"`
	Title      string     `gorm:"column:title"`
	Message    string     `gorm:"column:message"`
	Priority   string     `gorm:"column:priority;size:16"`
	Metadata   string     `gorm:"column:metadata;type:text"`
	IsRead     bool       `gorm:"column:is_read;index:idx_notifications_user_unread"`
	ReadAt     *time.Time `gorm:"column:read_at"`
	ArchivedAt *time.Time `gorm:"column:archived_at"`
	ExpiresAt  *time.Time `gorm:"column:expires_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;index"`
}

// TableName specifies table name for GORM
func (Record) TableName() string {
	return "notifications"
}

func recordFromEntity(userID int64, n *Notification) (*Record, error) {
	var meta string
	if n.Metadata != nil {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return nil, err
		}
		meta = string(b)
	}
	var expires *time.Time
	if n.ExpiresAt != nil {
		t := n.ExpiresAt.UTC()
		expires = &t
	}
	return &Record{
		ID:        n.ID,
		UserID:    userID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Priority:  n.Priority.String(),
		Metadata:  meta,
		IsRead:    n.IsRead,
		ExpiresAt: expires,
		CreatedAt: n.CreatedAt.UTC(),
	}, nil
}

// Entity decodes the record. Broken metadata is dropped rather than failing the read.
func (r *Record) Entity() Notification {
	n := Notification{
		ID:        r.ID,
		Type:      Type(r.Type),
		Title:     r.Title,
		Message:   r.Message,
		Priority:  ParsePriority(r.Priority),
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
	if r.Metadata != "" {
		var m Metadata
		if err := json.Unmarshal([]byte(r.Metadata), &m); err == nil {
			n.Metadata = &m
		}
	}
	return n
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, userID int64, n *Notification) error {
	rec, err := recordFromEntity(userID, n)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateNotification
		}
		return err
	}
	return nil
}

// active limits a query to the user's visible notifications.
func (r *Repository) active(ctx context.Context, userID int64) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&Record{}).
		Where("user_id = ? AND archived_at IS NULL", userID).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC())
}

func (r *Repository) List(ctx context.Context, userID int64, limit, offset int) ([]Notification, int64, error) {
	var total int64
	if err := r.active(ctx, userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Record
	q := r.active(ctx, userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toEntities(rows), total, nil
}

func (r *Repository) ListUnread(ctx context.Context, userID int64, limit int) ([]Notification, error) {
	var rows []Record
	q := r.active(ctx, userID).Where("is_read = ?", false).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (r *Repository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.active(ctx, userID).Where("is_read = ?", false).Count(&count).Error
	return count, err
}

func (r *Repository) MarkAsRead(ctx context.Context, userID int64, id string) error {
	res := r.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"is_read": true, "read_at": time.Now().UTC()})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *Repository) MarkAllAsRead(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Record{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *Repository) Delete(ctx context.Context, userID int64, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&Record{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *Repository) Archive(ctx context.Context, userID int64, id string) error {
	res := r.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ? AND user_id = ? AND archived_at IS NULL", id, userID).
		Update("archived_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteExpired removes notifications whose expiry is before now.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now.UTC()).
		Delete(&Record{})
	return res.RowsAffected, res.Error
}

// DeleteArchivedOlderThan removes archived notifications archived more than age ago.
func (r *Repository) DeleteArchivedOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("archived_at IS NOT NULL AND archived_at < ?", time.Now().UTC().Add(-age)).
		Delete(&Record{})
	return res.RowsAffected, res.Error
}

func toEntities(rows []Record) []Notification {
	out := make([]Notification, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Entity())
	}
	return out
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
