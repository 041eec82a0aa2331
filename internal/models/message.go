package models

import (
	"context"
	"time"
)

// Media is a downloaded or outgoing attachment.
type Media struct {
	Data     []byte
	Mimetype string
	Filename string
}

// DownloadFunc fetches the media attached to an inbound message.
type DownloadFunc func(ctx context.Context) (Media, error)

// InboundMessage is a customer message delivered by a chat channel.
type InboundMessage struct {
	ID             string
	ConversationID string
	PushName       string
	Text           string
	HasMedia       bool
	ReceivedAt     time.Time
	Download       DownloadFunc
}

// ClientRecord is the document persisted by the client-record service.
type ClientRecord struct {
	ID            string                  `json:"id,omitempty"`
	Name          string                  `json:"name"`
	Phone         string                  `json:"phone"`
	State         StepType                `json:"state"`
	Interest      Intent                  `json:"interest"`
	CarInterested string                  `json:"car_interested,omitempty"`
	Interests     []Interest              `json:"interests"`
	Documents     map[DocumentType]string `json:"documents"`
	Finance       map[string]string       `json:"finance,omitempty"`
	Job           string                  `json:"job"`
	TradeCar      *VehicleDescriptor      `json:"trade_car,omitempty"`
	Visit         *VisitData              `json:"visit,omitempty"`
	Report        string                  `json:"report"`
}

// ReportEntry is an audit row for a delivered staff report.
type ReportEntry struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Intent         Intent    `json:"intent"`
	Outcome        string    `json:"outcome"`
	Body           string    `json:"body"`
	Recipients     int       `json:"recipients"`
	Delivered      int       `json:"delivered"`
	CreatedAt      time.Time `json:"created_at"`
}

// StatusType is a delivery status reported by a chat channel.
type StatusType string

const (
	StatusTypeSent      StatusType = "sent"
	StatusTypeDelivered StatusType = "delivered"
	StatusTypeRead      StatusType = "read"
)

// Receipt is a delivery event for an outbound message.
type Receipt struct {
	To     string
	Status StatusType
	Time   int64
}
