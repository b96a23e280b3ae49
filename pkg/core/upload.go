package core

// UploadMetadata describes an exported replay for the web frontend.
type UploadMetadata struct {
	SourceName   string
	SessionID    string
	Frames       int
	Records      int
	DurationSecs float64
	Tag          string
}
