package storage

import (
	"context"
	"io"
)

// FileInfo describes a stored blob; it backs the Content-* headers of the
// file-serving endpoint.
type FileInfo struct {
	ID          string
	Name        string
	ContentType string
	Size        int64
}

// BlobStream pairs an open blob reader with its descriptor.
type BlobStream struct {
	Reader io.ReadCloser
	Info   *FileInfo
}

// BlobStore is the content-addressed binary store behind media files. The
// returned reader from Download must be closed (or fully drained) on every
// exit path; it holds a store-side handle.
type BlobStore interface {
	Available(ctx context.Context) bool
	Upload(ctx context.Context, name, contentType string, r io.Reader) (fileID string, err error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, *FileInfo, error)
	Delete(ctx context.Context, fileID string) error
}
