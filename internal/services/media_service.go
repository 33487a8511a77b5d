package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"media-gallery/internal/cache"
	"media-gallery/internal/events"
	"media-gallery/internal/models"
	"media-gallery/internal/repository"
	"media-gallery/internal/storage"
	"media-gallery/internal/utils"
)

const (
	SourceCache   = "cache"
	SourcePrimary = "primary"

	fileURLPrefix = "/api/media/file/"
	thumbWidth    = 320
)

var photoMimes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
}

var videoMimes = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
	"video/avi":       true,
	"video/webm":      true,
}

// EnrichedMedia is a media record merged with its cache-sourced aggregates
// and tagged with the store that served the record itself.
type EnrichedMedia struct {
	models.Media
	Likes     models.Likes     `json:"likes"`
	Favorites models.Favorites `json:"favorites"`
	Comments  []models.Comment `json:"comments"`
	Source    string           `json:"source"`
}

// UploadInput is one file of a multipart upload batch, fully buffered. The
// declared content type classifies the file; bytes flow to the blob store.
type UploadInput struct {
	Name        string
	ContentType string
	Data        []byte
}

type MediaServiceConfig struct {
	MaxFiles      int
	MaxFileSize   int64
	TrustNonEmpty bool
}

// MediaService orchestrates reads and writes across the local cache, the
// primary store and the blob store. The cache is always consulted first and
// is authoritative for likes, favorites and comments.
type MediaService struct {
	cache   *cache.Store
	primary repository.MediaRepository
	blobs   storage.BlobStore
	pub     *events.Publisher
	log     *zap.SugaredLogger
	cfg     MediaServiceConfig
	locks   *keyedMutex
	mirror  *mirrorWriter
}

func NewMediaService(
	c *cache.Store,
	primary repository.MediaRepository,
	blobs storage.BlobStore,
	pub *events.Publisher,
	log *zap.SugaredLogger,
	cfg MediaServiceConfig,
) *MediaService {
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = 10
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 100 * 1024 * 1024
	}
	return &MediaService{
		cache:   c,
		primary: primary,
		blobs:   blobs,
		pub:     pub,
		log:     log,
		cfg:     cfg,
		locks:   newKeyedMutex(),
		mirror:  newMirrorWriter(log),
	}
}

// Close drains pending mirror writes.
func (s *MediaService) Close() {
	s.mirror.Close()
}

// FlushMirror waits for queued primary-store mirror writes; used by sync and
// tests to get a settled view of both stores.
func (s *MediaService) FlushMirror() {
	s.mirror.Flush()
}

// List serves from the cache when it has rows (staleness trade-off: direct
// primary-store writes stay invisible until a miss or an explicit sync).
// Primary-store read failures degrade to cache results, never to errors.
func (s *MediaService) List(ctx context.Context, mediaType string) ([]EnrichedMedia, error) {
	cached, err := s.cache.ListMedia(ctx, mediaType)
	if err != nil {
		return nil, fmt.Errorf("cache list: %w", err)
	}
	if len(cached) > 0 && s.cfg.TrustNonEmpty {
		return s.enrichAll(ctx, cached, SourceCache)
	}
	if !s.primary.Available(ctx) {
		return s.enrichAll(ctx, cached, SourceCache)
	}
	fromPrimary, err := s.primary.List(ctx, mediaType)
	if err != nil {
		s.log.Warnw("primary list failed, serving cache", "error", err)
		return s.enrichAll(ctx, cached, SourceCache)
	}
	for i := range fromPrimary {
		if err := s.cache.SaveMedia(ctx, &fromPrimary[i]); err != nil {
			s.log.Warnw("cache repopulate failed", "id", fromPrimary[i].ID, "error", err)
		}
	}
	return s.enrichAll(ctx, fromPrimary, SourcePrimary)
}

// Get returns the enriched record or ErrNotFound. Primary unavailability is
// indistinguishable from absence by design.
func (s *MediaService) Get(ctx context.Context, id string) (*EnrichedMedia, error) {
	m, source, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := s.enrich(ctx, *m, source)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MediaService) lookup(ctx context.Context, id string) (*models.Media, string, error) {
	m, err := s.cache.GetMedia(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("cache get: %w", err)
	}
	if m != nil {
		return m, SourceCache, nil
	}
	if !s.primary.Available(ctx) {
		return nil, "", utils.ErrNotFound
	}
	m, err = s.primary.GetByID(ctx, id)
	if err != nil {
		if err == utils.ErrNotFound {
			return nil, "", utils.ErrNotFound
		}
		s.log.Warnw("primary get failed", "id", id, "error", err)
		return nil, "", utils.ErrNotFound
	}
	if err := s.cache.SaveMedia(ctx, m); err != nil {
		s.log.Warnw("cache repopulate failed", "id", id, "error", err)
	}
	return m, SourcePrimary, nil
}

func (s *MediaService) enrich(ctx context.Context, m models.Media, source string) (EnrichedMedia, error) {
	likes, err := s.cache.GetLikes(ctx, m.ID)
	if err != nil {
		return EnrichedMedia{}, fmt.Errorf("enrich likes: %w", err)
	}
	favorites, err := s.cache.GetFavorites(ctx, m.ID)
	if err != nil {
		return EnrichedMedia{}, fmt.Errorf("enrich favorites: %w", err)
	}
	comments, err := s.cache.GetComments(ctx, m.ID)
	if err != nil {
		return EnrichedMedia{}, fmt.Errorf("enrich comments: %w", err)
	}
	return EnrichedMedia{Media: m, Likes: likes, Favorites: favorites, Comments: comments, Source: source}, nil
}

func (s *MediaService) enrichAll(ctx context.Context, list []models.Media, source string) ([]EnrichedMedia, error) {
	out := make([]EnrichedMedia, 0, len(list))
	for _, m := range list {
		e, err := s.enrich(ctx, m, source)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// classify maps the declared media type onto photo/video. Anything outside
// the two allow-lists is rejected; the filename never overrides the declared
// type.
func classify(name, contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	switch {
	case photoMimes[ct]:
		return models.MediaTypePhoto, nil
	case videoMimes[ct]:
		return models.MediaTypeVideo, nil
	}
	return "", fmt.Errorf("%w: %s (%s)", utils.ErrUnsupportedType, name, contentType)
}

// Upload stores a batch of files. Ordering matters: the blob write completes
// before any record referencing it is persisted anywhere. A blob failure
// aborts the batch; a primary-store insert failure aborts too, since it means
// the primary was reachable and refused the write.
func (s *MediaService) Upload(ctx context.Context, files []UploadInput) ([]models.Media, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", utils.ErrValidation)
	}
	if len(files) > s.cfg.MaxFiles {
		return nil, fmt.Errorf("%w: at most %d files per upload", utils.ErrValidation, s.cfg.MaxFiles)
	}
	// validate the whole batch before touching any store
	kinds := make([]string, len(files))
	for i, f := range files {
		if int64(len(f.Data)) > s.cfg.MaxFileSize {
			return nil, fmt.Errorf("%w: %s exceeds size limit", utils.ErrValidation, f.Name)
		}
		kind, err := classify(f.Name, f.ContentType)
		if err != nil {
			return nil, err
		}
		kinds[i] = kind
	}

	blobsUp := s.blobs.Available(ctx)
	primaryUp := s.primary.Available(ctx)

	uploaded := make([]models.Media, 0, len(files))
	for i, f := range files {
		name := utils.DecodeFilename(f.Name)

		var fileID, url, thumbURL string
		if blobsUp {
			id, err := s.blobs.Upload(ctx, name, f.ContentType, bytes.NewReader(f.Data))
			if err != nil {
				return nil, fmt.Errorf("%w: store %s: %v", utils.ErrUpstream, name, err)
			}
			fileID = id
			url = fileURLPrefix + id
			if kinds[i] == models.MediaTypePhoto {
				thumbURL = s.uploadThumbnail(ctx, name, f.Data)
			}
		}

		m := models.Media{
			ID:           utils.NewID(),
			Type:         kinds[i],
			Name:         name,
			Size:         int64(len(f.Data)),
			URL:          url,
			ThumbnailURL: thumbURL,
			UploadTime:   time.Now().UTC(),
			FileID:       fileID,
			Metadata:     &models.Metadata{Mimetype: f.ContentType},
			Likes:        models.NewLikes(),
			Favorites:    models.NewFavorites(),
			Comments:     []models.Comment{},
		}

		if primaryUp {
			if err := s.primary.Insert(ctx, &m); err != nil {
				return nil, fmt.Errorf("%w: persist %s: %v", utils.ErrUpstream, name, err)
			}
		}
		if err := s.cache.SaveMedia(ctx, &m); err != nil {
			return nil, fmt.Errorf("cache save: %w", err)
		}
		if err := s.cache.SaveLikes(ctx, m.ID, models.NewLikes()); err != nil {
			return nil, fmt.Errorf("cache init likes: %w", err)
		}

		s.pub.Publish(ctx, events.MediaEvent{Event: events.MediaUploaded, MediaID: m.ID, Type: m.Type, Name: m.Name})
		uploaded = append(uploaded, m)
	}
	return uploaded, nil
}

// uploadThumbnail is best-effort; an undecodable image just gets no thumbnail.
func (s *MediaService) uploadThumbnail(ctx context.Context, name string, data []byte) string {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	thumb := imaging.Resize(img, thumbWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return ""
	}
	id, err := s.blobs.Upload(ctx, name+"_thumb.jpg", "image/jpeg", &buf)
	if err != nil {
		s.log.Warnw("thumbnail upload failed", "name", name, "error", err)
		return ""
	}
	return fileURLPrefix + id
}

// Delete removes the record, its blob(s) and all cached aggregates. Deleting
// an id no store knows is not an error; the end state is the same.
func (s *MediaService) Delete(ctx context.Context, id string) error {
	m, err := s.cache.GetMedia(ctx, id)
	if err != nil {
		return fmt.Errorf("cache get: %w", err)
	}
	primaryUp := s.primary.Available(ctx)
	if m == nil && primaryUp {
		if found, err := s.primary.GetByID(ctx, id); err == nil {
			m = found
		}
	}

	if m != nil && s.blobs.Available(ctx) {
		if m.FileID != "" {
			if err := s.blobs.Delete(ctx, m.FileID); err != nil && err != utils.ErrNotFound {
				s.log.Warnw("blob delete failed", "fileId", m.FileID, "error", err)
			}
		}
		if thumbID := strings.TrimPrefix(m.ThumbnailURL, fileURLPrefix); thumbID != "" && thumbID != m.ThumbnailURL {
			if err := s.blobs.Delete(ctx, thumbID); err != nil && err != utils.ErrNotFound {
				s.log.Warnw("thumbnail delete failed", "fileId", thumbID, "error", err)
			}
		}
	}

	if primaryUp {
		if err := s.primary.Delete(ctx, id); err != nil {
			s.log.Warnw("primary delete failed", "id", id, "error", err)
		}
	}
	if err := s.cache.DeleteMedia(ctx, id); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	s.pub.Publish(ctx, events.MediaEvent{Event: events.MediaDeleted, MediaID: id})
	return nil
}

// Download streams a blob. The caller owns the reader.
func (s *MediaService) Download(ctx context.Context, fileID string) (storage.BlobStream, error) {
	if !s.blobs.Available(ctx) {
		return storage.BlobStream{}, utils.ErrPrimaryUnavailable
	}
	rc, info, err := s.blobs.Download(ctx, fileID)
	if err != nil {
		return storage.BlobStream{}, err
	}
	return storage.BlobStream{Reader: rc, Info: info}, nil
}

// ToggleLike flips the user's like on the media. The cache write is
// authoritative; the primary mirror is queued best-effort. count stays equal
// to len(users) and never goes negative.
func (s *MediaService) ToggleLike(ctx context.Context, mediaID, user string) (models.Likes, error) {
	unlock := s.locks.Lock(mediaID)
	defer unlock()

	likes, err := s.cache.GetLikes(ctx, mediaID)
	if err != nil {
		return models.NewLikes(), fmt.Errorf("get likes: %w", err)
	}
	if idx := indexOf(likes.Users, user); idx >= 0 {
		likes.Users = append(likes.Users[:idx], likes.Users[idx+1:]...)
		if likes.Count > 0 {
			likes.Count--
		}
	} else {
		likes.Users = append(likes.Users, user)
		likes.Count++
	}
	if err := s.cache.SaveLikes(ctx, mediaID, likes); err != nil {
		return models.NewLikes(), fmt.Errorf("save likes: %w", err)
	}
	if s.primary.Available(ctx) {
		snapshot := likes
		s.mirror.Enqueue("likes:"+mediaID, func(ctx context.Context) error {
			return s.primary.SetLikes(ctx, mediaID, snapshot)
		})
	}
	return likes, nil
}

func (s *MediaService) GetLikes(ctx context.Context, mediaID string) (models.Likes, error) {
	return s.cache.GetLikes(ctx, mediaID)
}

func (s *MediaService) ToggleFavorite(ctx context.Context, mediaID, user string) (models.Favorites, error) {
	unlock := s.locks.Lock(mediaID)
	defer unlock()

	favorites, err := s.cache.GetFavorites(ctx, mediaID)
	if err != nil {
		return models.NewFavorites(), fmt.Errorf("get favorites: %w", err)
	}
	if idx := indexOf(favorites.Users, user); idx >= 0 {
		favorites.Users = append(favorites.Users[:idx], favorites.Users[idx+1:]...)
	} else {
		favorites.Users = append(favorites.Users, user)
	}
	if err := s.cache.SaveFavorites(ctx, mediaID, favorites); err != nil {
		return models.NewFavorites(), fmt.Errorf("save favorites: %w", err)
	}
	if s.primary.Available(ctx) {
		snapshot := favorites
		s.mirror.Enqueue("favorites:"+mediaID, func(ctx context.Context) error {
			return s.primary.SetFavorites(ctx, mediaID, snapshot)
		})
	}
	return favorites, nil
}

func (s *MediaService) GetFavorites(ctx context.Context, mediaID string) (models.Favorites, error) {
	return s.cache.GetFavorites(ctx, mediaID)
}

// AddComment creates a top-level comment, or a reply when replyTo names an
// existing top-level comment. A reply to an unknown parent is rejected with
// ErrNotFound rather than silently dropped.
func (s *MediaService) AddComment(ctx context.Context, mediaID, content, author string, replyTo *string) (*models.Comment, error) {
	unlock := s.locks.Lock(mediaID)
	defer unlock()

	now := time.Now().UTC()
	comment := models.Comment{
		ID:        utils.NewID(),
		Content:   content,
		Author:    author,
		Timestamp: now,
		ReplyTo:   replyTo,
		Replies:   []models.Reply{},
	}

	if replyTo == nil {
		if err := s.cache.SaveComment(ctx, mediaID, comment); err != nil {
			return nil, fmt.Errorf("save comment: %w", err)
		}
		if s.primary.Available(ctx) {
			s.mirror.Enqueue("comment:"+comment.ID, func(ctx context.Context) error {
				return s.primary.PushComment(ctx, mediaID, comment)
			})
		}
		return &comment, nil
	}

	comments, err := s.cache.GetComments(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}
	parentID := *replyTo
	var parent *models.Comment
	for i := range comments {
		if comments[i].ID == parentID {
			parent = &comments[i]
			break
		}
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: parent comment %s", utils.ErrNotFound, parentID)
	}
	reply := models.Reply{ID: comment.ID, Content: content, Author: author, Timestamp: now}
	parent.Replies = append(parent.Replies, reply)
	if err := s.cache.UpdateCommentReplies(ctx, mediaID, parentID, parent.Replies); err != nil {
		return nil, fmt.Errorf("update replies: %w", err)
	}
	if s.primary.Available(ctx) {
		s.mirror.Enqueue("reply:"+comment.ID, func(ctx context.Context) error {
			return s.primary.PushReply(ctx, mediaID, parentID, reply)
		})
	}
	return &comment, nil
}

func (s *MediaService) GetComments(ctx context.Context, mediaID string) ([]models.Comment, error) {
	return s.cache.GetComments(ctx, mediaID)
}

// DeleteComment removes a top-level comment, or one reply when parentID is
// set. No tombstones; deletion is immediate.
func (s *MediaService) DeleteComment(ctx context.Context, mediaID, commentID, parentID string) error {
	unlock := s.locks.Lock(mediaID)
	defer unlock()

	if parentID == "" {
		if err := s.cache.DeleteComment(ctx, mediaID, commentID); err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		if s.primary.Available(ctx) {
			s.mirror.Enqueue("uncomment:"+commentID, func(ctx context.Context) error {
				return s.primary.PullComment(ctx, mediaID, commentID)
			})
		}
		return nil
	}

	comments, err := s.cache.GetComments(ctx, mediaID)
	if err != nil {
		return fmt.Errorf("get comments: %w", err)
	}
	for i := range comments {
		if comments[i].ID != parentID {
			continue
		}
		kept := comments[i].Replies[:0]
		for _, r := range comments[i].Replies {
			if r.ID != commentID {
				kept = append(kept, r)
			}
		}
		if err := s.cache.UpdateCommentReplies(ctx, mediaID, parentID, kept); err != nil {
			return fmt.Errorf("update replies: %w", err)
		}
		if s.primary.Available(ctx) {
			s.mirror.Enqueue("unreply:"+commentID, func(ctx context.Context) error {
				return s.primary.PullReply(ctx, mediaID, parentID, commentID)
			})
		}
		return nil
	}
	// unknown parent: nothing to delete, same end state
	return nil
}

// UserFavorites resolves the user's favorited ids to full records, skipping
// ids no store can resolve.
func (s *MediaService) UserFavorites(ctx context.Context, user string) ([]models.Media, error) {
	ids, err := s.cache.UserFavoriteIDs(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("favorite ids: %w", err)
	}
	primaryUp := s.primary.Available(ctx)
	out := make([]models.Media, 0, len(ids))
	for _, id := range ids {
		m, err := s.cache.GetMedia(ctx, id)
		if err != nil {
			return nil, err
		}
		if m == nil && primaryUp {
			if found, err := s.primary.GetByID(ctx, id); err == nil {
				m = found
			}
		}
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

// Sync rebuilds the whole cache from the primary store. Non-incremental by
// design; rerunning after a partial failure converges. Pending mirror writes
// are flushed first so the rebuild doesn't resurrect state they would then
// overwrite in the primary.
func (s *MediaService) Sync(ctx context.Context) (int, error) {
	if !s.primary.Available(ctx) {
		return 0, utils.ErrPrimaryUnavailable
	}
	s.mirror.Flush()
	if err := s.cache.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	all, err := s.primary.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", utils.ErrPrimaryUnavailable, err)
	}
	for i := range all {
		m := &all[i]
		if err := s.cache.SaveMedia(ctx, m); err != nil {
			return 0, fmt.Errorf("sync media %s: %w", m.ID, err)
		}
		likes := m.Likes
		if likes.Users == nil {
			likes = models.NewLikes()
		}
		if err := s.cache.SaveLikes(ctx, m.ID, likes); err != nil {
			return 0, fmt.Errorf("sync likes %s: %w", m.ID, err)
		}
		favorites := m.Favorites
		if favorites.Users == nil {
			favorites = models.NewFavorites()
		}
		if err := s.cache.SaveFavorites(ctx, m.ID, favorites); err != nil {
			return 0, fmt.Errorf("sync favorites %s: %w", m.ID, err)
		}
		for _, c := range m.Comments {
			if err := s.cache.SaveComment(ctx, m.ID, c); err != nil {
				return 0, fmt.Errorf("sync comment %s: %w", c.ID, err)
			}
		}
	}
	return len(all), nil
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
