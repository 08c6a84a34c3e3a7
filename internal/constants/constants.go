// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Scan pipeline constants
const (
	// DefaultUserID is recorded on results when no authenticated user is known
	DefaultUserID = "current_user"

	// DefaultErrorMessage is shown when a failure carries no message of its own
	DefaultErrorMessage = "An error occurred"

	// UploadFailedMessage is shown when either image upload yields no URL
	UploadFailedMessage = "Failed to upload images"

	// DefaultHistoryLimit is the maximum number of results kept in a controller's history
	DefaultHistoryLimit = 100
)

// Storage constants
const (
	// DefaultBucket is the object storage bucket holding scan photos
	DefaultBucket = "face-scans"

	// ImageContentType is the content type of uploaded scan photos
	ImageContentType = "image/jpeg"
)

// Image processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) sent to vision analyzers
	MaxImageSize = 1024
)

// Routine store constants
const (
	// RoutinesKey is the preference store key holding the encoded routine list
	RoutinesKey = "routines"
)
