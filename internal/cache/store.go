package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"media-gallery/internal/models"
)

// Store is the local cache adapter. It is always available and is the
// authority for likes, favorites and comments; media rows are denormalized
// copies of primary-store documents.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	if err := db.AutoMigrate(&MediaRow{}, &LikesRow{}, &CommentRow{}, &FavoritesRow{}); err != nil {
		return nil, fmt.Errorf("migrate cache schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func mustJSON(v interface{}) datatypes.JSON {
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}

func toRow(m *models.Media) *MediaRow {
	row := &MediaRow{
		ID:           m.ID,
		Type:         m.Type,
		Name:         m.Name,
		Size:         m.Size,
		URL:          m.URL,
		ThumbnailURL: m.ThumbnailURL,
		UploadTime:   m.UploadTime,
		FileID:       m.FileID,
	}
	if m.Metadata != nil {
		row.MetadataJSON = mustJSON(m.Metadata)
	}
	return row
}

func fromRow(row *MediaRow) models.Media {
	m := models.Media{
		ID:           row.ID,
		Type:         row.Type,
		Name:         row.Name,
		Size:         row.Size,
		URL:          row.URL,
		ThumbnailURL: row.ThumbnailURL,
		UploadTime:   row.UploadTime,
		FileID:       row.FileID,
	}
	if len(row.MetadataJSON) > 0 {
		var meta models.Metadata
		if json.Unmarshal(row.MetadataJSON, &meta) == nil {
			m.Metadata = &meta
		}
	}
	return m
}

// Media

func (s *Store) ListMedia(ctx context.Context, mediaType string) ([]models.Media, error) {
	q := s.db.WithContext(ctx).Order("upload_time DESC")
	if mediaType != "" && mediaType != "all" {
		q = q.Where("type = ?", mediaType)
	}
	var rows []MediaRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Media, 0, len(rows))
	for i := range rows {
		out = append(out, fromRow(&rows[i]))
	}
	return out, nil
}

// GetMedia returns nil when the id is not cached; callers decide whether that
// is a miss or a NotFound.
func (s *Store) GetMedia(ctx context.Context, id string) (*models.Media, error) {
	var row MediaRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m := fromRow(&row)
	return &m, nil
}

// SaveMedia upserts by id (replace semantics, like INSERT OR REPLACE).
func (s *Store) SaveMedia(ctx context.Context, m *models.Media) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(toRow(m)).Error
}

// DeleteMedia removes the media row and cascades to its likes, comments and
// favorites.
func (s *Store) DeleteMedia(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MediaRow{}, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&LikesRow{}, "media_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&CommentRow{}, "media_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&FavoritesRow{}, "media_id = ?", id).Error
	})
}

// Likes

func (s *Store) GetLikes(ctx context.Context, mediaID string) (models.Likes, error) {
	var row LikesRow
	err := s.db.WithContext(ctx).First(&row, "media_id = ?", mediaID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewLikes(), nil
	}
	if err != nil {
		return models.NewLikes(), err
	}
	likes := models.Likes{Count: row.Count, Users: []string{}}
	_ = json.Unmarshal(row.UsersJSON, &likes.Users)
	return likes, nil
}

func (s *Store) SaveLikes(ctx context.Context, mediaID string, likes models.Likes) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "media_id"}},
		UpdateAll: true,
	}).Create(&LikesRow{MediaID: mediaID, Count: likes.Count, UsersJSON: mustJSON(likes.Users)}).Error
}

// Comments

func (s *Store) GetComments(ctx context.Context, mediaID string) ([]models.Comment, error) {
	var rows []CommentRow
	err := s.db.WithContext(ctx).
		Where("media_id = ?", mediaID).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Comment, 0, len(rows))
	for _, row := range rows {
		c := models.Comment{
			ID:        row.ID,
			Content:   row.Content,
			Author:    row.Author,
			Timestamp: row.Timestamp,
			ReplyTo:   row.ReplyTo,
			Replies:   []models.Reply{},
		}
		_ = json.Unmarshal(row.RepliesJSON, &c.Replies)
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) SaveComment(ctx context.Context, mediaID string, c models.Comment) error {
	if c.Replies == nil {
		c.Replies = []models.Reply{}
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&CommentRow{
		ID:          c.ID,
		MediaID:     mediaID,
		Content:     c.Content,
		Author:      c.Author,
		Timestamp:   c.Timestamp,
		ReplyTo:     c.ReplyTo,
		RepliesJSON: mustJSON(c.Replies),
	}).Error
}

func (s *Store) UpdateCommentReplies(ctx context.Context, mediaID, commentID string, replies []models.Reply) error {
	return s.db.WithContext(ctx).Model(&CommentRow{}).
		Where("id = ? AND media_id = ?", commentID, mediaID).
		Update("replies_json", mustJSON(replies)).Error
}

func (s *Store) DeleteComment(ctx context.Context, mediaID, commentID string) error {
	return s.db.WithContext(ctx).
		Delete(&CommentRow{}, "id = ? AND media_id = ?", commentID, mediaID).Error
}

// Favorites

func (s *Store) GetFavorites(ctx context.Context, mediaID string) (models.Favorites, error) {
	var row FavoritesRow
	err := s.db.WithContext(ctx).First(&row, "media_id = ?", mediaID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewFavorites(), nil
	}
	if err != nil {
		return models.NewFavorites(), err
	}
	fav := models.Favorites{Users: []string{}}
	_ = json.Unmarshal(row.UsersJSON, &fav.Users)
	return fav, nil
}

func (s *Store) SaveFavorites(ctx context.Context, mediaID string, favorites models.Favorites) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "media_id"}},
		UpdateAll: true,
	}).Create(&FavoritesRow{MediaID: mediaID, UsersJSON: mustJSON(favorites.Users)}).Error
}

// UserFavoriteIDs returns ids of every media the user has favorited.
func (s *Store) UserFavoriteIDs(ctx context.Context, user string) ([]string, error) {
	var rows []FavoritesRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	var ids []string
	for _, row := range rows {
		var users []string
		if json.Unmarshal(row.UsersJSON, &users) != nil {
			continue
		}
		for _, u := range users {
			if u == user {
				ids = append(ids, row.MediaID)
				break
			}
		}
	}
	return ids, nil
}

// Clear empties the media, likes and comments tables ahead of a full rebuild.
// Favorites rows are overwritten by the rebuild itself.
func (s *Store) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&MediaRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&LikesRow{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&CommentRow{}).Error
	})
}
