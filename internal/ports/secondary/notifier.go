package secondary

// Notifier defines the secondary port to the fire-and-forget toast surface.
type Notifier interface {
	Success(msg string)
	Error(msg string)
	Info(msg string)
}
