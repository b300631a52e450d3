package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var errMissingUser = errors.New("sync request without user_id")

// SyncRequest asks the worker to run a sync for a user. It carries no
// data: the worker reads both stores itself.
type SyncRequest struct {
	UserID      string    `json:"user_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewSyncRequest(userID, reason string) *SyncRequest {
	return &SyncRequest{
		UserID:      strings.TrimSpace(userID),
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	}
}

func (m *SyncRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncRequestFromJSON decodes and validates a message body.
func SyncRequestFromJSON(data []byte) (*SyncRequest, error) {
	var msg SyncRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	msg.UserID = strings.TrimSpace(msg.UserID)
	if msg.UserID == "" {
		return nil, errMissingUser
	}
	return &msg, nil
}
