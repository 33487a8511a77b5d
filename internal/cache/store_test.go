package cache

import (
	"context"
	"testing"
	"time"

	"media-gallery/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMedia(id, mediaType string, uploaded time.Time) *models.Media {
	return &models.Media{
		ID:         id,
		Type:       mediaType,
		Name:       id + ".jpg",
		Size:       1024,
		URL:        "/api/media/file/" + id,
		UploadTime: uploaded,
		FileID:     "f-" + id,
		Metadata:   &models.Metadata{Mimetype: "image/jpeg"},
	}
}

func TestSaveMediaUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := testMedia("m1", models.MediaTypePhoto, time.Now().UTC())
	if err := s.SaveMedia(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	m.Name = "renamed.jpg"
	if err := s.SaveMedia(ctx, m); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := s.GetMedia(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "renamed.jpg" {
		t.Fatalf("expected upserted row, got %+v", got)
	}
	if got.Metadata == nil || got.Metadata.Mimetype != "image/jpeg" {
		t.Fatalf("metadata lost on round trip: %+v", got.Metadata)
	}

	all, err := s.ListMedia(ctx, "all")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", len(all))
	}
}

func TestGetMediaMissReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetMedia(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil on miss, got %+v", got)
	}
}

func TestListMediaOrderAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, tc := range []struct {
		id  string
		typ string
	}{
		{"old", models.MediaTypePhoto},
		{"mid", models.MediaTypeVideo},
		{"new", models.MediaTypePhoto},
	} {
		m := testMedia(tc.id, tc.typ, base.Add(time.Duration(i)*time.Minute))
		if err := s.SaveMedia(ctx, m); err != nil {
			t.Fatalf("save %s: %v", tc.id, err)
		}
	}

	all, err := s.ListMedia(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "new" || all[2].ID != "old" {
		t.Fatalf("expected newest-first ordering, got %+v", all)
	}

	photos, err := s.ListMedia(ctx, models.MediaTypePhoto)
	if err != nil {
		t.Fatalf("list photos: %v", err)
	}
	if len(photos) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(photos))
	}
}

func TestDeleteMediaCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveMedia(ctx, testMedia("m1", models.MediaTypePhoto, time.Now().UTC())); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveLikes(ctx, "m1", models.Likes{Count: 2, Users: []string{"a", "b"}}); err != nil {
		t.Fatalf("save likes: %v", err)
	}
	if err := s.SaveFavorites(ctx, "m1", models.Favorites{Users: []string{"a"}}); err != nil {
		t.Fatalf("save favorites: %v", err)
	}
	if err := s.SaveComment(ctx, "m1", models.Comment{ID: "c1", Content: "hi", Author: "a", Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("save comment: %v", err)
	}

	if err := s.DeleteMedia(ctx, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got, _ := s.GetMedia(ctx, "m1"); got != nil {
		t.Fatalf("media row survived delete")
	}
	likes, _ := s.GetLikes(ctx, "m1")
	if likes.Count != 0 || len(likes.Users) != 0 {
		t.Fatalf("likes survived delete: %+v", likes)
	}
	comments, _ := s.GetComments(ctx, "m1")
	if len(comments) != 0 {
		t.Fatalf("comments survived delete: %+v", comments)
	}
	fav, _ := s.GetFavorites(ctx, "m1")
	if len(fav.Users) != 0 {
		t.Fatalf("favorites survived delete: %+v", fav)
	}
}

func TestCommentsOrderedAndRepliesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	if err := s.SaveComment(ctx, "m1", models.Comment{ID: "c2", Content: "second", Author: "b", Timestamp: base.Add(time.Minute)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveComment(ctx, "m1", models.Comment{ID: "c1", Content: "first", Author: "a", Timestamp: base}); err != nil {
		t.Fatalf("save: %v", err)
	}

	replies := []models.Reply{{ID: "r1", Content: "reply", Author: "c", Timestamp: base.Add(2 * time.Minute)}}
	if err := s.UpdateCommentReplies(ctx, "m1", "c1", replies); err != nil {
		t.Fatalf("update replies: %v", err)
	}

	got, err := s.GetComments(ctx, "m1")
	if err != nil {
		t.Fatalf("get comments: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c2" {
		t.Fatalf("expected oldest-first ordering, got %+v", got)
	}
	if len(got[0].Replies) != 1 || got[0].Replies[0].ID != "r1" {
		t.Fatalf("replies lost on round trip: %+v", got[0].Replies)
	}
}

func TestUserFavoriteIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveFavorites(ctx, "m1", models.Favorites{Users: []string{"alice", "bob"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveFavorites(ctx, "m2", models.Favorites{Users: []string{"bob"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	ids, err := s.UserFavoriteIDs(ctx, "alice")
	if err != nil {
		t.Fatalf("favorite ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != "m1" {
		t.Fatalf("expected [m1], got %v", ids)
	}
}

func TestClearKeepsFavorites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveMedia(ctx, testMedia("m1", models.MediaTypePhoto, time.Now().UTC())); err != nil {
		t.Fatalf("save media: %v", err)
	}
	if err := s.SaveLikes(ctx, "m1", models.Likes{Count: 1, Users: []string{"a"}}); err != nil {
		t.Fatalf("save likes: %v", err)
	}
	if err := s.SaveComment(ctx, "m1", models.Comment{ID: "c1", Content: "x", Author: "a", Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("save comment: %v", err)
	}
	if err := s.SaveFavorites(ctx, "m1", models.Favorites{Users: []string{"a"}}); err != nil {
		t.Fatalf("save favorites: %v", err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if got, _ := s.GetMedia(ctx, "m1"); got != nil {
		t.Fatalf("media survived clear")
	}
	likes, _ := s.GetLikes(ctx, "m1")
	if likes.Count != 0 {
		t.Fatalf("likes survived clear: %+v", likes)
	}
	comments, _ := s.GetComments(ctx, "m1")
	if len(comments) != 0 {
		t.Fatalf("comments survived clear")
	}
	fav, _ := s.GetFavorites(ctx, "m1")
	if len(fav.Users) != 1 {
		t.Fatalf("favorites should survive clear, got %+v", fav)
	}
}
