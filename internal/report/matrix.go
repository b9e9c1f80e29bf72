package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// MatrixError is an error response from the homeserver.
type MatrixError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Matrix sends plain-text messages to Matrix rooms.
type Matrix struct {
	homeserver  string
	accessToken string
	client      *http.Client
}

// NewMatrix creates a Matrix sender. An empty homeserver disables sending.
func NewMatrix(homeserver, accessToken string) *Matrix {
	return &Matrix{
		homeserver:  strings.TrimSuffix(homeserver, "/"),
		accessToken: accessToken,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a homeserver is configured.
func (m *Matrix) Enabled() bool {
	return m != nil && m.homeserver != ""
}

type textMessage struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// Send posts body to room and returns the event id. Each call uses a fresh
// transaction id, so a retried call may be delivered twice.
func (m *Matrix) Send(ctx context.Context, room, body string) (string, error) {
	payload, err := json.Marshal(textMessage{MsgType: "m.text", Body: body})
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(room),
		url.PathEscape(uuid.NewString()),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, m.homeserver+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("matrix: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.accessToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("matrix: send to %q: %w", room, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("matrix: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &MatrixError{
			Code:       gjson.GetBytes(data, "errcode").String(),
			Message:    gjson.GetBytes(data, "error").String(),
			StatusCode: resp.StatusCode,
		}
	}

	eventID := gjson.GetBytes(data, "event_id")
	if !eventID.Exists() {
		return "", fmt.Errorf("matrix: send to %q: response has no event_id", room)
	}
	return eventID.String(), nil
}
