package registry

// Service is a long-running agent component. Start must not block; Stop
// returns once the service's goroutines have exited.
type Service interface {
	Start() error
	Stop() error
}
