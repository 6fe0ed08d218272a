package payments

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidPayload = errors.New("invalid notification payload")

// Notification is the subset of a Mercado Pago webhook body the service acts on.
type Notification struct {
	ID          string
	Type        string
	Action      string
	ResourceID  string
	LiveMode    bool
	DateCreated time.Time
}

// IdempotencyKey returns a key that is stable across provider retries of the
// same event. Retries reuse the notification id while each status change of a
// resource gets a new one, so the id wins when present. fingerprint is used
// when the payload carries neither id.
func (n Notification) IdempotencyKey(fingerprint string) string {
	if n.ID != "" {
		return "notification:" + n.ID
	}
	if n.ResourceID == "" {
		return "body:" + fingerprint
	}
	key := n.Type + ":" + n.ResourceID
	if n.Action != "" {
		key += ":" + n.Action
	}
	return key
}

// ParseNotification decodes a webhook body. It must only be called on the
// raw bytes after signature verification has succeeded.
func ParseNotification(body []byte) (Notification, error) {
	var payload struct {
		ID          json.RawMessage `json:"id"`
		Type        string          `json:"type"`
		Topic       string          `json:"topic"`
		Action      string          `json:"action"`
		LiveMode    bool            `json:"live_mode"`
		DateCreated string          `json:"date_created"`
		Data        struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	n := Notification{
		Type:     strings.TrimSpace(payload.Type),
		Action:   strings.TrimSpace(payload.Action),
		LiveMode: payload.LiveMode,
	}
	if n.Type == "" {
		n.Type = strings.TrimSpace(payload.Topic)
	}
	if n.Type == "" {
		return Notification{}, fmt.Errorf("%w: type is required", ErrInvalidPayload)
	}

	var err error
	if n.ID, err = scalarString(payload.ID); err != nil {
		return Notification{}, fmt.Errorf("%w: id: %v", ErrInvalidPayload, err)
	}
	if n.ResourceID, err = scalarString(payload.Data.ID); err != nil {
		return Notification{}, fmt.Errorf("%w: data.id: %v", ErrInvalidPayload, err)
	}
	if payload.DateCreated != "" {
		created, parseErr := time.Parse(time.RFC3339, payload.DateCreated)
		if parseErr != nil {
			return Notification{}, fmt.Errorf("%w: date_created: %v", ErrInvalidPayload, parseErr)
		}
		n.DateCreated = created
	}
	return n, nil
}

// scalarString accepts a JSON string or number and returns its text form.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", err
	}
	return num.String(), nil
}
