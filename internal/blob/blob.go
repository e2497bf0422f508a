// Package blob abstracts file storage for room uploads.
package blob

import "io"

// Store uploads an object and returns a URL clients can fetch it from.
type Store interface {
	Upload(objectName string, r io.Reader, contentType string) (string, error)
}
