package storage

import "testing"

// Both drivers must satisfy the BlobStore port with matching signatures.
var (
	_ BlobStore = (*GridFSStore)(nil)
	_ BlobStore = (*S3Store)(nil)
)

func TestFileInfoDefaults(t *testing.T) {
	var info FileInfo
	if info.Size != 0 || info.ContentType != "" {
		t.Fatalf("zero value should be empty, got %+v", info)
	}
}
