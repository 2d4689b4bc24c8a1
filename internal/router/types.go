package router

// Config holds configuration for the publication router.
type Config struct {
	InputBufferSize  int // Default: 1000
	OutputBufferSize int // Default: 5000
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		InputBufferSize:  1000,
		OutputBufferSize: 5000,
	}
}

// Source is a channel whose binary payloads can be observed.
// *subscription.Subscription satisfies it.
type Source interface {
	Channel() string
	OnBinaryMessage(fn func(data []byte))
}

// Stats contains runtime statistics.
type Stats struct {
	Received int64 // payloads accepted from sources
	Routed   int64 // publications handed to the output buffer
	Dropped  int64 // payloads rejected after close
	Input    BufferStats
	Output   BufferStats
}

// inbound is a payload captured on a subscription handler goroutine.
type inbound struct {
	channel string
	payload []byte
	at      int64 // µs
}
