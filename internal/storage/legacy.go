package storage

import (
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/noahxzhu/discord-scheduler/internal/model"
)

// legacyRecord covers both files of the previous bot: announcements carry
// channel_id/role_id/time/repeat, reminders carry channel_id/user_id/due.
type legacyRecord struct {
	ChannelID json.Number  `json:"channel_id"`
	RoleID    *json.Number `json:"role_id"`
	UserID    *json.Number `json:"user_id"`
	Message   string       `json:"message"`
	Time      *float64     `json:"time"`
	Due       *float64     `json:"due"`
	Repeat    *float64     `json:"repeat"`
}

const reminderPrefix = "⏰ Reminder: "

func migrateLegacy(records []legacyRecord) []*model.Delivery {
	out := make([]*model.Delivery, 0, len(records))
	now := time.Now().UTC()
	for _, r := range records {
		ts := r.Time
		if ts == nil {
			ts = r.Due
		}
		if ts == nil || math.IsNaN(*ts) || math.IsInf(*ts, 0) || *ts < 0 || r.ChannelID == "" {
			slog.Warn("Skipping unreadable legacy record", "channel_id", r.ChannelID)
			continue
		}
		sec, frac := math.Modf(*ts)
		d := &model.Delivery{
			ID:          uuid.New().String(),
			Destination: model.Destination{Kind: model.KindChannel, ID: r.ChannelID.String()},
			Payload:     model.Payload{Content: r.Message},
			DueAt:       time.Unix(int64(sec), int64(frac*1e9)).UTC(),
			CreatedAt:   now,
		}
		if r.RoleID != nil && *r.RoleID != "" {
			d.Payload.MentionRole = r.RoleID.String()
		}
		if r.UserID != nil && *r.UserID != "" {
			d.Payload.MentionUser = r.UserID.String()
			d.CreatedBy = r.UserID.String()
			if !strings.HasPrefix(d.Payload.Content, reminderPrefix) {
				d.Payload.Content = reminderPrefix + d.Payload.Content
			}
		}
		if r.Repeat != nil && *r.Repeat > 0 {
			if math.IsInf(*r.Repeat, 0) || *r.Repeat > float64(model.MaxRepeatSeconds) {
				slog.Warn("Skipping legacy record with out of range repeat", "channel_id", r.ChannelID, "repeat", *r.Repeat)
				continue
			}
			d.Repeat = int64(*r.Repeat)
		}
		out = append(out, d)
	}
	slog.Info("Migrated legacy queue file", "records", len(out))
	return out
}
