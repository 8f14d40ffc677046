package models

import (
	"net/url"
	"time"
)

// NotificationKind selects the payload shape for a target.
type NotificationKind string

const (
	// NotificationWebhook posts a plain JSON message.
	NotificationWebhook NotificationKind = "webhook"
	// NotificationDiscord posts a Discord embed.
	NotificationDiscord NotificationKind = "discord"
)

// NotificationTarget is an HTTP endpoint that receives job outcome messages.
// URLs often carry secrets in the query string, so the field is tagged for
// log redaction.
type NotificationTarget struct {
	ID        int64     `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Kind NotificationKind `gorm:"not null;size:16" json:"kind"`

	URL string `gorm:"not null;size:2048" json:"url" masq:"secret"`

	OnComplete bool `json:"on_complete"`
	OnFailure  bool `json:"on_failure"`
	Enabled    bool `json:"enabled"`
}

// TableName overrides the GORM table name.
func (NotificationTarget) TableName() string {
	return "notification_targets"
}

// Validate checks kind and URL.
func (n *NotificationTarget) Validate() error {
	switch n.Kind {
	case NotificationWebhook, NotificationDiscord:
	default:
		return ErrValidation{Field: "kind", Message: "must be webhook or discord"}
	}
	u, err := url.Parse(n.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrValidation{Field: "url", Message: "must be an absolute http(s) URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrValidation{Field: "url", Message: "must be an absolute http(s) URL"}
	}
	return nil
}
