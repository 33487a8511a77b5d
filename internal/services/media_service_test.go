package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"media-gallery/internal/cache"
	"media-gallery/internal/models"
	"media-gallery/internal/storage"
	"media-gallery/internal/utils"
)

type fakeMediaRepo struct {
	mu   sync.Mutex
	up   bool
	docs map[string]*models.Media
}

func newFakeRepo(up bool) *fakeMediaRepo {
	return &fakeMediaRepo{up: up, docs: make(map[string]*models.Media)}
}

func (f *fakeMediaRepo) Available(ctx context.Context) bool { return f.up }

func (f *fakeMediaRepo) List(ctx context.Context, mediaType string) ([]models.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Media
	for _, m := range f.docs {
		if mediaType == "" || mediaType == "all" || m.Type == mediaType {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMediaRepo) GetByID(ctx context.Context, id string) (*models.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.docs[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMediaRepo) Insert(ctx context.Context, m *models.Media) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.docs[m.ID] = &cp
	return nil
}

func (f *fakeMediaRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeMediaRepo) SetLikes(ctx context.Context, id string, likes models.Likes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.docs[id]; ok {
		m.Likes = likes
	}
	return nil
}

func (f *fakeMediaRepo) SetFavorites(ctx context.Context, id string, favorites models.Favorites) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.docs[id]; ok {
		m.Favorites = favorites
	}
	return nil
}

func (f *fakeMediaRepo) PushComment(ctx context.Context, id string, c models.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.docs[id]; ok {
		m.Comments = append(m.Comments, c)
	}
	return nil
}

func (f *fakeMediaRepo) PushReply(ctx context.Context, id, parentID string, r models.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.docs[id]
	if !ok {
		return utils.ErrNotFound
	}
	for i := range m.Comments {
		if m.Comments[i].ID == parentID {
			m.Comments[i].Replies = append(m.Comments[i].Replies, r)
			return nil
		}
	}
	return utils.ErrNotFound
}

func (f *fakeMediaRepo) PullComment(ctx context.Context, id, commentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.docs[id]
	if !ok {
		return nil
	}
	kept := m.Comments[:0]
	for _, c := range m.Comments {
		if c.ID != commentID {
			kept = append(kept, c)
		}
	}
	m.Comments = kept
	return nil
}

func (f *fakeMediaRepo) PullReply(ctx context.Context, id, parentID, replyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.docs[id]
	if !ok {
		return nil
	}
	for i := range m.Comments {
		if m.Comments[i].ID != parentID {
			continue
		}
		kept := m.Comments[i].Replies[:0]
		for _, r := range m.Comments[i].Replies {
			if r.ID != replyID {
				kept = append(kept, r)
			}
		}
		m.Comments[i].Replies = kept
	}
	return nil
}

func (f *fakeMediaRepo) FindAll(ctx context.Context) ([]models.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Media, 0, len(f.docs))
	for _, m := range f.docs {
		out = append(out, *m)
	}
	return out, nil
}

type fakeBlobStore struct {
	mu    sync.Mutex
	up    bool
	blobs map[string][]byte
	next  int
}

func newFakeBlobs(up bool) *fakeBlobStore {
	return &fakeBlobStore{up: up, blobs: make(map[string][]byte)}
}

func (f *fakeBlobStore) Available(ctx context.Context) bool { return f.up }

func (f *fakeBlobStore) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.next++
	id := fmt.Sprintf("blob-%d", f.next)
	f.blobs[id] = data
	return id, nil
}

func (f *fakeBlobStore) Download(ctx context.Context, fileID string) (io.ReadCloser, *storage.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[fileID]
	if !ok {
		return nil, nil, utils.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), &storage.FileInfo{ID: fileID, Size: int64(len(data))}, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[fileID]; !ok {
		return utils.ErrNotFound
	}
	delete(f.blobs, fileID)
	return nil
}

func newTestService(t *testing.T, repo *fakeMediaRepo, blobs *fakeBlobStore) *MediaService {
	t.Helper()
	store, err := cache.Open(":memory:")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	svc := NewMediaService(store, repo, blobs, nil, zap.NewNop().Sugar(), MediaServiceConfig{
		MaxFiles:      10,
		MaxFileSize:   100 * 1024 * 1024,
		TrustNonEmpty: true,
	})
	t.Cleanup(svc.Close)
	return svc
}

func TestUploadRepairsMangledFilename(t *testing.T) {
	repo := newFakeRepo(true)
	svc := newTestService(t, repo, newFakeBlobs(true))
	ctx := context.Background()

	// the transport hands over utf-8 bytes misread as latin-1
	mangled, err := charmap.ISO8859_1.NewDecoder().String("测试.jpg")
	if err != nil {
		t.Fatalf("build mangled name: %v", err)
	}

	uploaded, err := svc.Upload(ctx, []UploadInput{{
		Name:        mangled,
		ContentType: "image/jpeg",
		Data:        make([]byte, 3072),
	}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(uploaded) != 1 {
		t.Fatalf("expected 1 record, got %d", len(uploaded))
	}
	m := uploaded[0]
	if m.Name != "测试.jpg" {
		t.Fatalf("expected repaired filename, got %q", m.Name)
	}
	if m.Size != 3072 || m.Type != models.MediaTypePhoto {
		t.Fatalf("wrong record: %+v", m)
	}
	if m.FileID == "" || m.URL == "" {
		t.Fatalf("blob reference missing: %+v", m)
	}

	got, err := svc.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get after upload: %v", err)
	}
	if got.Source != SourceCache {
		t.Fatalf("expected cache-served read, got %q", got.Source)
	}
	if got.Likes.Count != 0 || len(got.Likes.Users) != 0 {
		t.Fatalf("likes should start empty: %+v", got.Likes)
	}
	if _, ok := repo.docs[m.ID]; !ok {
		t.Fatalf("record missing from primary store")
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	svc := newTestService(t, newFakeRepo(true), newFakeBlobs(true))
	_, err := svc.Upload(context.Background(), []UploadInput{{
		Name:        "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("hello"),
	}})
	if !errors.Is(err, utils.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestUploadIgnoresExtensionWhenTypeDisallowed(t *testing.T) {
	svc := newTestService(t, newFakeRepo(true), newFakeBlobs(true))
	_, err := svc.Upload(context.Background(), []UploadInput{{
		Name:        "movie.mp4",
		ContentType: "application/octet-stream",
		Data:        []byte{1, 2, 3},
	}})
	if !errors.Is(err, utils.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType for disallowed declared type, got %v", err)
	}
}

func TestUploadRejectsTooManyFiles(t *testing.T) {
	svc := newTestService(t, newFakeRepo(true), newFakeBlobs(true))
	files := make([]UploadInput, 11)
	for i := range files {
		files[i] = UploadInput{Name: fmt.Sprintf("p%d.jpg", i), ContentType: "image/jpeg", Data: []byte{1}}
	}
	_, err := svc.Upload(context.Background(), files)
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestUploadWorksWithPrimaryDown(t *testing.T) {
	repo := newFakeRepo(false)
	svc := newTestService(t, repo, newFakeBlobs(true))

	uploaded, err := svc.Upload(context.Background(), []UploadInput{{
		Name:        "offline.jpg",
		ContentType: "image/jpeg",
		Data:        []byte{1, 2, 3},
	}})
	if err != nil {
		t.Fatalf("upload with primary down: %v", err)
	}
	if len(repo.docs) != 0 {
		t.Fatalf("primary should not have been written")
	}
	got, err := svc.Get(context.Background(), uploaded[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Source != SourceCache {
		t.Fatalf("expected cache read, got %q", got.Source)
	}
}

func TestGetFallsBackToPrimaryAndRepopulates(t *testing.T) {
	repo := newFakeRepo(true)
	repo.docs["m1"] = &models.Media{ID: "m1", Type: models.MediaTypePhoto, Name: "a.jpg"}
	svc := newTestService(t, repo, newFakeBlobs(true))
	ctx := context.Background()

	got, err := svc.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Source != SourcePrimary {
		t.Fatalf("expected primary-served read, got %q", got.Source)
	}

	again, err := svc.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if again.Source != SourceCache {
		t.Fatalf("expected repopulated cache read, got %q", again.Source)
	}
}

func TestGetMissPrimaryDown(t *testing.T) {
	svc := newTestService(t, newFakeRepo(false), newFakeBlobs(true))
	_, err := svc.Get(context.Background(), "ghost")
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestToggleLike(t *testing.T) {
	repo := newFakeRepo(true)
	svc := newTestService(t, repo, newFakeBlobs(true))
	ctx := context.Background()

	likes, err := svc.ToggleLike(ctx, "m1", "alice")
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if likes.Count != 1 || len(likes.Users) != 1 || likes.Users[0] != "alice" {
		t.Fatalf("unexpected likes after first toggle: %+v", likes)
	}

	likes, err = svc.ToggleLike(ctx, "m1", "alice")
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if likes.Count != 0 || len(likes.Users) != 0 {
		t.Fatalf("expected empty likes after second toggle: %+v", likes)
	}
	if likes.Count != len(likes.Users) {
		t.Fatalf("count diverged from users: %+v", likes)
	}
}

func TestToggleLikeMirrorsToPrimary(t *testing.T) {
	repo := newFakeRepo(true)
	repo.docs["m1"] = &models.Media{ID: "m1"}
	svc := newTestService(t, repo, newFakeBlobs(true))

	if _, err := svc.ToggleLike(context.Background(), "m1", "alice"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	svc.FlushMirror()

	if repo.docs["m1"].Likes.Count != 1 {
		t.Fatalf("mirror write missing: %+v", repo.docs["m1"].Likes)
	}
}

func TestToggleFavorite(t *testing.T) {
	svc := newTestService(t, newFakeRepo(true), newFakeBlobs(true))
	ctx := context.Background()

	fav, err := svc.ToggleFavorite(ctx, "m1", "bob")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if len(fav.Users) != 1 || fav.Users[0] != "bob" {
		t.Fatalf("unexpected favorites: %+v", fav)
	}

	fav, err = svc.ToggleFavorite(ctx, "m1", "bob")
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if len(fav.Users) != 0 {
		t.Fatalf("expected empty favorites: %+v", fav)
	}
}

func TestCommentsAndReplies(t *testing.T) {
	svc := newTestService(t, newFakeRepo(true), newFakeBlobs(true))
	ctx := context.Background()

	top, err := svc.AddComment(ctx, "m1", "nice shot", "alice", nil)
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if _, err := svc.AddComment(ctx, "m1", "thanks", "bob", &top.ID); err != nil {
		t.Fatalf("add reply: %v", err)
	}

	comments, err := svc.GetComments(ctx, "m1")
	if err != nil {
		t.Fatalf("get comments: %v", err)
	}
	if len(comments) != 1 || len(comments[0].Replies) != 1 {
		t.Fatalf("expected 1 comment with 1 reply, got %+v", comments)
	}
	if comments[0].Replies[0].Author != "bob" {
		t.Fatalf("wrong reply: %+v", comments[0].Replies[0])
	}
}

func TestReplyToMissingParent(t *testing.T) {
	svc := newTestService(t, newFakeRepo(true), newFakeBlobs(true))
	missing := "no-such-comment"
	_, err := svc.AddComment(context.Background(), "m1", "hello?", "alice", &missing)
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing parent, got %v", err)
	}
}

func TestDeleteReply(t *testing.T) {
	svc := newTestService(t, newFakeRepo(true), newFakeBlobs(true))
	ctx := context.Background()

	top, err := svc.AddComment(ctx, "m1", "root", "alice", nil)
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	reply, err := svc.AddComment(ctx, "m1", "leaf", "bob", &top.ID)
	if err != nil {
		t.Fatalf("add reply: %v", err)
	}

	if err := svc.DeleteComment(ctx, "m1", reply.ID, top.ID); err != nil {
		t.Fatalf("delete reply: %v", err)
	}
	comments, _ := svc.GetComments(ctx, "m1")
	if len(comments) != 1 || len(comments[0].Replies) != 0 {
		t.Fatalf("reply survived delete: %+v", comments)
	}
}

func TestDeleteMediaCascadesAndGets404(t *testing.T) {
	repo := newFakeRepo(true)
	blobs := newFakeBlobs(true)
	svc := newTestService(t, repo, blobs)
	ctx := context.Background()

	uploaded, err := svc.Upload(ctx, []UploadInput{{
		Name:        "gone.jpg",
		ContentType: "image/jpeg",
		Data:        []byte{1, 2, 3},
	}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	id := uploaded[0].ID
	if _, err := svc.ToggleLike(ctx, id, "alice"); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, id); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
	if len(blobs.blobs) != 0 {
		t.Fatalf("blob survived delete")
	}
	if _, ok := repo.docs[id]; ok {
		t.Fatalf("primary record survived delete")
	}
	// deleting again is not an error; the end state holds
	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestUserFavorites(t *testing.T) {
	repo := newFakeRepo(true)
	svc := newTestService(t, repo, newFakeBlobs(true))
	ctx := context.Background()

	uploaded, err := svc.Upload(ctx, []UploadInput{{
		Name:        "fav.jpg",
		ContentType: "image/jpeg",
		Data:        []byte{9},
	}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := svc.ToggleFavorite(ctx, uploaded[0].ID, "carol"); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	favs, err := svc.UserFavorites(ctx, "carol")
	if err != nil {
		t.Fatalf("user favorites: %v", err)
	}
	if len(favs) != 1 || favs[0].ID != uploaded[0].ID {
		t.Fatalf("expected the favorited record, got %+v", favs)
	}
}

func TestSyncRebuildsCache(t *testing.T) {
	repo := newFakeRepo(true)
	repo.docs["m1"] = &models.Media{
		ID:        "m1",
		Type:      models.MediaTypePhoto,
		Name:      "synced.jpg",
		Likes:     models.Likes{Count: 2, Users: []string{"a", "b"}},
		Favorites: models.Favorites{Users: []string{"a"}},
		Comments:  []models.Comment{{ID: "c1", Content: "hi", Author: "a"}},
	}
	svc := newTestService(t, repo, newFakeBlobs(true))
	ctx := context.Background()

	// stale local row the rebuild must wipe
	if _, err := svc.ToggleLike(ctx, "stale", "x"); err != nil {
		t.Fatalf("seed stale: %v", err)
	}

	count, err := svc.Sync(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 synced record, got %d", count)
	}

	got, err := svc.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get after sync: %v", err)
	}
	if got.Likes.Count != 2 || len(got.Favorites.Users) != 1 || len(got.Comments) != 1 {
		t.Fatalf("aggregates not rebuilt: %+v", got)
	}
	stale, err := svc.GetLikes(ctx, "stale")
	if err != nil {
		t.Fatalf("get stale likes: %v", err)
	}
	if stale.Count != 0 {
		t.Fatalf("stale likes survived sync: %+v", stale)
	}

	// rerunning converges to the same state
	if _, err := svc.Sync(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}
}

func TestSyncPrimaryDown(t *testing.T) {
	svc := newTestService(t, newFakeRepo(false), newFakeBlobs(true))
	_, err := svc.Sync(context.Background())
	if !errors.Is(err, utils.ErrPrimaryUnavailable) {
		t.Fatalf("expected ErrPrimaryUnavailable, got %v", err)
	}
}

func TestListServesCacheWhenPrimaryDown(t *testing.T) {
	repo := newFakeRepo(false)
	svc := newTestService(t, repo, newFakeBlobs(true))
	ctx := context.Background()

	if _, err := svc.Upload(ctx, []UploadInput{{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte{1}}}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	list, err := svc.List(ctx, "all")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Source != SourceCache {
		t.Fatalf("expected 1 cache-served record, got %+v", list)
	}
}
