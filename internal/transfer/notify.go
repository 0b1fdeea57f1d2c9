package transfer

// Level is the severity of a user notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier shows a message to the user
type Notifier interface {
	Notify(level Level, message string)
}

type NotifyFunc func(level Level, message string)

func (f NotifyFunc) Notify(level Level, message string) {
	f(level, message)
}
