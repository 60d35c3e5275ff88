package model

// Server-sent event names on the chat stream.
const (
	EventMessage = "message"
	EventInfo    = "info"
	EventNewChat = "newChat"
	EventWarning = "warning"
	EventError   = "error"
	EventEnd     = "end"
)

// MessageFrame is the payload of a message event.
type MessageFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// TurnCompletedEvent is published after a turn pair has been stored.
type TurnCompletedEvent struct {
	UserID          string `json:"user_id"`
	ChatID          string `json:"chat_id"`
	UserTurnID      string `json:"user_turn_id"`
	AssistantTurnID string `json:"assistant_turn_id"`
	Mode            Mode   `json:"mode"`
	Model           string `json:"model"`
	NewChat         bool   `json:"new_chat"`
	ResponseChars   int    `json:"response_chars"`
	CreatedAt       int64  `json:"created_at"`
}
