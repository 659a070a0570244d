package replication

import "context"

// MessageType identifies a replication message
type MessageType string

const (
	MessageInit         MessageType = "init"
	MessageConfigChange MessageType = "config_change"
	MessageError        MessageType = "error"
)

// Message is a server to client replication frame
type Message struct {
	Type    MessageType `json:"type"`
	Configs []Snapshot  `json:"configs,omitempty"`
	Error   string      `json:"error,omitempty"`
	Missing []string    `json:"missing,omitempty"`
}

// Stream is the transport of one session. Send must honor the transport's
// write deadline and Close must unblock a pending Send.
type Stream interface {
	Send(ctx context.Context, msg *Message) error
	Close() error
}
