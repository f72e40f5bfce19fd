package attach

import "io"

// Upload is one incoming payload. The two variants are the only encodings
// clients may use and both go through Normalizer.Normalize.
type Upload interface {
	upload()
}

// StreamedUpload is a binary part read straight from the request body.
// DeclaredSize is the transport's size hint, or -1 when unknown.
type StreamedUpload struct {
	Reader       io.Reader
	Filename     string
	ContentType  string
	DeclaredSize int64
}

// Base64Upload is a base64 payload carried in a JSON body. Data may be a
// data: URI.
type Base64Upload struct {
	Data        string
	Filename    string
	ContentType string
}

func (StreamedUpload) upload() {}
func (Base64Upload) upload()   {}
