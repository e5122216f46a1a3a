package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

const (
	// partSize is the multipart chunk size; the S3 minimum is 5 MiB.
	partSize int64 = 5 * 1024 * 1024

	// maxDocumentSize caps how much of a stored document is read back.
	maxDocumentSize = 16 << 20
)

// Archive implements domain.SnapshotArchive on a bucket. Documents are
// written once and never overwritten by the service.
type Archive struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewArchive creates an Archive on the client's bucket.
func NewArchive(c *Client) *Archive {
	return &Archive{
		client: c.s3,
		uploader: manager.NewUploader(c.s3, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
		bucket: c.bucket,
	}
}

// PutDocument stores doc as an immutable JSON object at key.
func (a *Archive) PutDocument(ctx context.Context, key string, doc []byte) error {
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(doc),
		ContentLength: aws.Int64(int64(len(doc))),
		ContentType:   aws.String("application/json"),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

// GetDocument reads the document at key. Documents larger than
// maxDocumentSize are rejected rather than truncated.
func (a *Archive) GetDocument(ctx context.Context, key string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("s3blob: %s exceeds %d bytes", key, maxDocumentSize)
	}
	return data, nil
}

// isNotFound reports whether err means the object or bucket key is absent.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	var httpErr interface{ HTTPStatusCode() int }
	switch {
	case errors.As(err, &nsk), errors.As(err, &nf):
		return true
	case errors.As(err, &httpErr):
		// Some compatible stores only report a bare 404.
		return httpErr.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}

var _ domain.SnapshotArchive = (*Archive)(nil)
