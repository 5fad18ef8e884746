package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidDelivery = errors.New("invalid delivery")

// MaxRepeatSeconds is the longest repeat interval that still fits a time.Duration.
const MaxRepeatSeconds = math.MaxInt64 / int64(time.Second)

type DestinationKind string

const (
	KindChannel  DestinationKind = "channel"  // Discord text channel
	KindUser     DestinationKind = "user"     // Discord direct message
	KindPushover DestinationKind = "pushover" // Pushover user key
)

// Destination is resolved by the sink at delivery time.
type Destination struct {
	Kind DestinationKind `json:"kind"`
	ID   string          `json:"id"`
}

func (d Destination) String() string {
	return string(d.Kind) + ":" + d.ID
}

type Payload struct {
	Content     string `json:"content"`
	MentionRole string `json:"mention_role,omitempty"`
	MentionUser string `json:"mention_user,omitempty"`
}

type Delivery struct {
	ID          string      `json:"id"`
	Destination Destination `json:"destination"`
	Payload     Payload     `json:"payload"`
	DueAt       time.Time   `json:"due_at"`
	Repeat      int64       `json:"repeat_interval,omitempty"` // seconds, 0 for one-shot
	CreatedBy   string      `json:"created_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// RepeatInterval returns the repeat interval as a duration, zero for one-shot deliveries.
func (d Delivery) RepeatInterval() time.Duration {
	return time.Duration(d.Repeat) * time.Second
}

func (d Delivery) Repeating() bool {
	return d.Repeat > 0
}

func (d Delivery) Due(now time.Time) bool {
	return !d.DueAt.After(now)
}

// Validate checks the record invariants. The destination itself is not resolved here.
func (d Delivery) Validate() error {
	if d.DueAt.IsZero() || d.DueAt.Before(time.Unix(0, 0)) {
		return fmt.Errorf("%w: due time must be a non-negative timestamp", ErrInvalidDelivery)
	}
	if d.Repeat < 0 || d.Repeat > MaxRepeatSeconds {
		return fmt.Errorf("%w: repeat interval %ds out of range", ErrInvalidDelivery, d.Repeat)
	}
	if d.Destination.Kind == "" || d.Destination.ID == "" {
		return fmt.Errorf("%w: destination is required", ErrInvalidDelivery)
	}
	if d.Payload.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidDelivery)
	}
	return nil
}

const QueueFileVersion = 1

type QueueFile struct {
	Version    int         `json:"version"`
	Deliveries []*Delivery `json:"deliveries"`
}
