// Attachment storage backends
package storage

import "context"

// AttachmentStore persists raw attachment bytes under a logical folder and
// returns a stable URL. Delete is fire-and-forget; callers ignore its error
// beyond logging.
type AttachmentStore interface {
	Upload(ctx context.Context, data []byte, folder, fileName string) (string, error)
	Delete(ctx context.Context, url string) error
}
