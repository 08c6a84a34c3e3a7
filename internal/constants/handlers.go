package constants

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum accepted photo size in bytes (20MB)
	MaxUploadSize = 20 << 20
)
