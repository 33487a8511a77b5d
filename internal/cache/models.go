package cache

import (
	"time"

	"gorm.io/datatypes"
)

// Row types mirror the relational cache schema. Aggregates and reply lists are
// stored as JSON columns keyed by the same ids as the primary store.

type MediaRow struct {
	ID           string `gorm:"primaryKey"`
	Type         string `gorm:"index;not null"`
	Name         string `gorm:"not null"`
	Size         int64  `gorm:"not null"`
	URL          string
	ThumbnailURL string
	UploadTime   time.Time `gorm:"not null"`
	FileID       string
	MetadataJSON datatypes.JSON `gorm:"column:metadata_json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (MediaRow) TableName() string { return "media_cache" }

type LikesRow struct {
	MediaID   string         `gorm:"primaryKey;column:media_id"`
	Count     int            `gorm:"default:0"`
	UsersJSON datatypes.JSON `gorm:"column:users_json"`
	UpdatedAt time.Time
}

func (LikesRow) TableName() string { return "likes_cache" }

type CommentRow struct {
	ID          string         `gorm:"primaryKey"`
	MediaID     string         `gorm:"index;not null;column:media_id"`
	Content     string         `gorm:"not null"`
	Author      string         `gorm:"not null"`
	Timestamp   time.Time      `gorm:"not null"`
	ReplyTo     *string        `gorm:"column:reply_to"`
	RepliesJSON datatypes.JSON `gorm:"column:replies_json"`
	CreatedAt   time.Time
}

func (CommentRow) TableName() string { return "comments_cache" }

type FavoritesRow struct {
	MediaID   string         `gorm:"primaryKey;column:media_id"`
	UsersJSON datatypes.JSON `gorm:"column:users_json"`
	UpdatedAt time.Time
}

func (FavoritesRow) TableName() string { return "favorites_cache" }
