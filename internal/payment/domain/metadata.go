package domain

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Initiation struct {
	MerchantReference string          `json:"merchant_reference"`
	ProviderOrder     json.RawMessage `json:"provider_order,omitempty"`
	InitiatedAt       time.Time       `json:"initiated_at"`
}

// EventEntry is one webhook delivery applied to the payment.
type EventEntry struct {
	ProviderEventID string    `json:"provider_event_id"`
	Type            string    `json:"type"`
	Success         bool      `json:"success"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	OccurredAt      time.Time `json:"occurred_at"`
	ReceivedAt      time.Time `json:"received_at"`
	Note            string    `json:"note,omitempty"`
}

type ActivationError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Reactivation struct {
	ActorID string    `json:"actor_id"`
	At      time.Time `json:"at"`
}

func NewMetadata(init Initiation) (datatypes.JSON, error) {
	return json.Marshal(map[string]any{
		MetadataInitiation: init,
		MetadataEvents:     []EventEntry{},
	})
}

// AppendEvent returns a copy of meta with entry appended to events.
func AppendEvent(meta datatypes.JSON, entry EventEntry) (datatypes.JSON, error) {
	fields, err := decodeMetadata(meta)
	if err != nil {
		return nil, err
	}

	var events []EventEntry
	if raw, ok := fields[MetadataEvents]; ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, err
		}
	}
	events = append(events, entry)

	encoded, err := json.Marshal(events)
	if err != nil {
		return nil, err
	}
	fields[MetadataEvents] = encoded
	return json.Marshal(fields)
}

// SetMetadata returns a copy of meta with key set to value.
func SetMetadata(meta datatypes.JSON, key string, value any) (datatypes.JSON, error) {
	fields, err := decodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	fields[key] = encoded
	return json.Marshal(fields)
}

// Events decodes the events recorded on meta.
func Events(meta datatypes.JSON) ([]EventEntry, error) {
	fields, err := decodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	var events []EventEntry
	if raw, ok := fields[MetadataEvents]; ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func decodeMetadata(meta datatypes.JSON) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(meta) == 0 || string(meta) == "null" {
		return fields, nil
	}
	if err := json.Unmarshal(meta, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
