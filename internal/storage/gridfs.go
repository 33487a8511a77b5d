package storage

import (
	"context"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"media-gallery/internal/repository"
	"media-gallery/internal/utils"
)

// GridFSStore keeps blobs in the same Mongo deployment as the primary store,
// so blob reachability tracks primary reachability.
type GridFSStore struct {
	client *mongo.Client
	bucket *gridfs.Bucket
}

type gridfsMeta struct {
	ContentType  string `bson:"contentType"`
	OriginalName string `bson:"originalName"`
}

func NewGridFSStore(client *mongo.Client, db, bucketName string) (*GridFSStore, error) {
	bucket, err := gridfs.NewBucket(client.Database(db), options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}
	return &GridFSStore{client: client, bucket: bucket}, nil
}

func (g *GridFSStore) Available(ctx context.Context) bool {
	return repository.Ping(ctx, g.client)
}

func (g *GridFSStore) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	opts := options.GridFSUpload().SetMetadata(gridfsMeta{
		ContentType:  contentType,
		OriginalName: name,
	})
	oid := primitive.NewObjectID()
	if err := g.bucket.UploadFromStreamWithID(oid, name, r, opts); err != nil {
		return "", fmt.Errorf("gridfs upload: %w", err)
	}
	return oid.Hex(), nil
}

func (g *GridFSStore) Download(ctx context.Context, fileID string) (io.ReadCloser, *FileInfo, error) {
	oid, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return nil, nil, utils.ErrNotFound
	}
	stream, err := g.bucket.OpenDownloadStream(oid)
	if err != nil {
		if err == gridfs.ErrFileNotFound {
			return nil, nil, utils.ErrNotFound
		}
		return nil, nil, fmt.Errorf("gridfs open: %w", err)
	}
	file := stream.GetFile()
	info := &FileInfo{
		ID:          fileID,
		Name:        file.Name,
		ContentType: "application/octet-stream",
		Size:        file.Length,
	}
	var meta gridfsMeta
	if len(file.Metadata) > 0 && bson.Unmarshal(file.Metadata, &meta) == nil && meta.ContentType != "" {
		info.ContentType = meta.ContentType
	}
	return stream, info, nil
}

func (g *GridFSStore) Delete(ctx context.Context, fileID string) error {
	oid, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return utils.ErrNotFound
	}
	if err := g.bucket.Delete(oid); err != nil {
		if err == gridfs.ErrFileNotFound {
			return utils.ErrNotFound
		}
		return fmt.Errorf("gridfs delete: %w", err)
	}
	return nil
}
