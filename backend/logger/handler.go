// Package logger provides a slog.Handler that persists records as audit
// entries, so every auth event (login, lockout, role change, 2FA change)
// lands in the audit trail with its structured attributes.
package logger

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"gorm.io/gorm"

	"warehouse-mro/backend/models"
)

type AuditHandler struct {
	db          *gorm.DB
	jsonHandler slog.Handler
	attrs       []slog.Attr
}

func NewAuditHandler(db *gorm.DB) *AuditHandler {
	return &AuditHandler{
		db:          db,
		jsonHandler: slog.NewJSONHandler(os.Stdout, nil),
		attrs:       []slog.Attr{},
	}
}

func (h *AuditHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *AuditHandler) Handle(ctx context.Context, r slog.Record) error {
	// Stdout first, so records survive even if the write below fails.
	_ = h.jsonHandler.Handle(ctx, r)

	data := map[string]any{}
	var source string
	var userID *uint

	collect := func(a slog.Attr) {
		switch a.Key {
		case "source":
			source = a.Value.String()
		case "user_id":
			if id := attrUserID(a.Value); id > 0 {
				userID = &id
			}
		default:
			data[a.Key] = a.Value.Any()
		}
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	var encoded string
	if len(data) > 0 {
		b, _ := json.Marshal(data)
		encoded = string(b)
	}

	entry := models.AuditEntry{
		CreatedAt: time.Now().UTC(),
		Level:     r.Level.String(),
		Message:   r.Message,
		Source:    source,
		UserID:    userID,
		Data:      encoded,
	}
	return h.db.Create(&entry).Error
}

func (h *AuditHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &AuditHandler{db: h.db, jsonHandler: h.jsonHandler, attrs: merged}
}

func (h *AuditHandler) WithGroup(name string) slog.Handler {
	return h
}

func attrUserID(v slog.Value) uint {
	switch v.Kind() {
	case slog.KindInt64:
		return uint(v.Int64())
	case slog.KindUint64:
		return uint(v.Uint64())
	default:
		return 0
	}
}

// CleanupOldEntries deletes audit entries older than maxAge, hourly.
func CleanupOldEntries(db *gorm.DB, maxAge time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	for range ticker.C {
		cutoff := time.Now().UTC().Add(-maxAge)
		db.Where("created_at < ?", cutoff).Delete(&models.AuditEntry{})
	}
}
