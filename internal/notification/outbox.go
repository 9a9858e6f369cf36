// Package notification queues outbound email notifications and delivers them
// asynchronously. Delivery failures never propagate to the operation that
// queued the notification.
package notification

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Template names dispatched to subscribers and staff.
const (
	TemplateLetterSubmitted  = "letter_submitted"
	TemplateLetterApproved   = "letter_approved"
	TemplateLetterRejected   = "letter_rejected"
	TemplateLetterCompleted  = "letter_completed"
	TemplatePaymentConfirmed = "payment_confirmed"
)

// Message describes one notification to queue.
type Message struct {
	Template  string
	Recipient string
	Payload   map[string]any
	DedupeKey string
}

// Outbox row awaiting delivery. Published rows are kept for audit.
type Outbox struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	Template    string            `gorm:"type:text;not null"`
	Recipient   string            `gorm:"type:text;not null"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	DedupeKey   *string           `gorm:"type:text;uniqueIndex"`
	Published   bool              `gorm:"not null;default:false"`
	PublishedAt *time.Time
	Attempts    int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Outbox) TableName() string { return "notification_outbox" }

// Queue inserts notification messages, optionally inside a caller transaction.
type Queue struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewQueue(db *gorm.DB, genID *snowflake.Node) *Queue {
	return &Queue{db: db, genID: genID}
}

// Enqueue stores a message using the default database connection.
func (q *Queue) Enqueue(ctx context.Context, msg Message) error {
	return q.enqueue(ctx, q.db, msg)
}

// EnqueueTx stores a message using an existing transaction so the
// notification commits atomically with the triggering change.
func (q *Queue) EnqueueTx(ctx context.Context, tx *gorm.DB, msg Message) error {
	if tx == nil {
		return errors.New("missing_transaction")
	}
	return q.enqueue(ctx, tx, msg)
}

func (q *Queue) enqueue(ctx context.Context, db *gorm.DB, msg Message) error {
	if q == nil || db == nil || q.genID == nil {
		return errors.New("outbox_unavailable")
	}
	template := strings.TrimSpace(msg.Template)
	if template == "" {
		return errors.New("missing_template")
	}
	recipient := strings.TrimSpace(msg.Recipient)
	if recipient == "" {
		return errors.New("missing_recipient")
	}

	payload := datatypes.JSONMap{}
	for key, value := range msg.Payload {
		if strings.TrimSpace(key) == "" {
			continue
		}
		payload[key] = value
	}

	dedupe := strings.TrimSpace(msg.DedupeKey)
	var dedupeValue any
	if dedupe != "" {
		dedupeValue = dedupe
	}

	return db.WithContext(ctx).Exec(
		`INSERT INTO notification_outbox (id, template, recipient, payload, dedupe_key, published, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, FALSE, 0, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		q.genID.Generate(),
		template,
		recipient,
		payload,
		dedupeValue,
		time.Now().UTC(),
	).Error
}
