package models

// UploadStatus is the outcome of storing newly extracted content
type UploadStatus string

const (
	UploadStatusSkipped       UploadStatus = "SKIPPED"
	UploadStatusStoredVersion UploadStatus = "STORED_VERSION"
	UploadStatusUpdatedMain   UploadStatus = "UPDATED_MAIN"
	UploadStatusError         UploadStatus = "ERROR"
)

// UploadResult reports what an upload did.
// On a skip, VersionTimestamp names the existing version with the same hash.
// VersionStored is set when the version write succeeded, even if the call
// later failed while writing main.
type UploadResult struct {
	Status           UploadStatus `json:"status"`
	VersionTimestamp string       `json:"version_timestamp,omitempty"`
	VersionStored    bool         `json:"version_stored"`
}

// Message is the user-facing summary for a status
func (s UploadStatus) Message() string {
	switch s {
	case UploadStatusUpdatedMain:
		return "Content updated and set as main version"
	case UploadStatusSkipped:
		return "Content already exists"
	case UploadStatusStoredVersion:
		return "Content updated"
	default:
		return "Failed to store content"
	}
}
