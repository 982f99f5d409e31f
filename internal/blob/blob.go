// Package blob provides durable storage for composed audio artifacts behind
// a narrow upload interface.
package blob

import "context"

// Store uploads a local artifact to durable storage and returns the public
// URL it is served from.
type Store interface {
	Upload(ctx context.Context, localPath, destPath string) (publicURL string, err error)
}
