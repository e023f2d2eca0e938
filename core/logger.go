package core

// Logger is implemented by every application logger.
// args may hold an error, a map[string]interface{} of extra fields or a user.User.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
