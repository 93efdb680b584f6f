package amqp

import (
	"encoding/json"
	"time"

	"finbrief/internal/core"
)

// ReportOutcomeMessage announces the committed outcome of one subscription's
// processing cycle. Consumers (monitoring, alerting) only need the derived
// fields; full records live in the database.
type ReportOutcomeMessage struct {
	CycleID        string            `json:"cycle_id"`
	SubscriptionID int64             `json:"subscription_id"`
	UserID         int64             `json:"user_id"`
	Status         core.ReportStatus `json:"status"`
	Period         string            `json:"period"`
	Timestamp      time.Time         `json:"timestamp"`
}

func NewReportOutcomeMessage(cycleID string, subscriptionID, userID int64, status core.ReportStatus, period string) *ReportOutcomeMessage {
	return &ReportOutcomeMessage{
		CycleID:        cycleID,
		SubscriptionID: subscriptionID,
		UserID:         userID,
		Status:         status,
		Period:         period,
		Timestamp:      time.Now(),
	}
}

func (m *ReportOutcomeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReportOutcomeMessageFromJSON(data []byte) (*ReportOutcomeMessage, error) {
	var msg ReportOutcomeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
