package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Event describes a merchant-facing event to store in the outbox.
type Event struct {
	MerchantID snowflake.ID
	Type       string
	Payload    map[string]any
	DedupeKey  string
}

// OutboxRecord is the durable outbox row. A relay drains unpublished rows
// and delivers them to merchant notify endpoints.
type OutboxRecord struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	MerchantID snowflake.ID      `gorm:"index"`
	EventType  string            `gorm:"uniqueIndex:idx_outbox_dedupe"`
	DedupeKey  string            `gorm:"uniqueIndex:idx_outbox_dedupe"`
	Payload    datatypes.JSONMap `gorm:"type:json"`
	Published  bool              `gorm:"index"`
	CreatedAt  time.Time
}

func (OutboxRecord) TableName() string { return "merchant_events" }

// Outbox inserts merchant events into the merchant_events table.
type Outbox struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewOutbox(db *gorm.DB, genID *snowflake.Node) *Outbox {
	return &Outbox{db: db, genID: genID}
}

// Publish stores an event using the default database connection.
func (o *Outbox) Publish(ctx context.Context, event Event) error {
	return o.publish(ctx, o.db, event)
}

// PublishTx stores an event using an existing transaction, so the event
// commits or rolls back with the state change it describes.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errors.New("missing_transaction")
	}
	return o.publish(ctx, tx, event)
}

func (o *Outbox) publish(ctx context.Context, db *gorm.DB, event Event) error {
	if o == nil || db == nil || o.genID == nil {
		return errors.New("outbox_unavailable")
	}
	if event.MerchantID == 0 {
		return errors.New("invalid_merchant_id")
	}
	name := strings.TrimSpace(event.Type)
	if name == "" {
		return errors.New("missing_event_type")
	}

	payload := datatypes.JSONMap{}
	for key, value := range event.Payload {
		if strings.TrimSpace(key) == "" {
			continue
		}
		payload[key] = value
	}

	record := OutboxRecord{
		ID:         o.genID.Generate(),
		MerchantID: event.MerchantID,
		EventType:  name,
		DedupeKey:  strings.TrimSpace(event.DedupeKey),
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error
}
