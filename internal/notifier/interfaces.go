package notifier

import "time"

// Level is the severity of a user notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notification is the snackbar state shown to the user
type Notification struct {
	Id        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Visible   bool      `json:"visible"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher is the part of the notifier the action layer depends on
type Publisher interface {
	Success(message string)
	Error(message string)
}
