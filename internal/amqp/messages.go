package amqp

import (
	"encoding/json"
	"time"
)

const (
	OpCreate Op = "create"
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
)

// Op names the mutation that produced a SeriesChangedMessage.
type Op string

// SeriesChangedMessage tells the worker that the listed roots were touched
// by a mutation. The worker re-materializes them inside the projection
// window; it fetches all record state from the database itself.
type SeriesChangedMessage struct {
	RootIDs   []string  `json:"root_ids"`
	Op        Op        `json:"op"`
	Scope     string    `json:"scope"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSeriesChangedMessage(op Op, scope string, rootIDs ...string) *SeriesChangedMessage {
	return &SeriesChangedMessage{
		RootIDs:   rootIDs,
		Op:        op,
		Scope:     scope,
		Timestamp: time.Now(),
	}
}

func (m *SeriesChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SeriesChangedMessageFromJSON(data []byte) (*SeriesChangedMessage, error) {
	var msg SeriesChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
