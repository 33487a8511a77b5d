package models

import "time"

const (
	MediaTypePhoto = "photo"
	MediaTypeVideo = "video"
)

// Metadata carries free-form probe data about the stored file. Only mimetype
// is filled at upload time; dimensions and duration are reserved for probing.
type Metadata struct {
	Width    int    `bson:"width,omitempty" json:"width,omitempty"`
	Height   int    `bson:"height,omitempty" json:"height,omitempty"`
	Duration int    `bson:"duration,omitempty" json:"duration,omitempty"`
	Format   string `bson:"format,omitempty" json:"format,omitempty"`
	Mimetype string `bson:"mimetype,omitempty" json:"mimetype,omitempty"`
}

type Likes struct {
	Count int      `bson:"count" json:"count"`
	Users []string `bson:"users" json:"users"`
}

type Favorites struct {
	Users []string `bson:"users" json:"users"`
}

// Reply is a second-level comment. Replies cannot be replied to.
type Reply struct {
	ID        string    `bson:"id" json:"id"`
	Content   string    `bson:"content" json:"content"`
	Author    string    `bson:"author" json:"author"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type Comment struct {
	ID        string    `bson:"id" json:"id"`
	Content   string    `bson:"content" json:"content"`
	Author    string    `bson:"author" json:"author"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	ReplyTo   *string   `bson:"replyTo" json:"replyTo"`
	Replies   []Reply   `bson:"replies" json:"replies"`
}

// Media is the primary-store document. Likes, favorites and comments are
// mirrored copies; the cache holds the authoritative aggregates.
type Media struct {
	ID           string    `bson:"id" json:"id"`
	Type         string    `bson:"type" json:"type"`
	Name         string    `bson:"name" json:"name"`
	Size         int64     `bson:"size" json:"size"`
	URL          string    `bson:"url" json:"url"`
	ThumbnailURL string    `bson:"thumbnailUrl,omitempty" json:"thumbnailUrl,omitempty"`
	UploadTime   time.Time `bson:"uploadTime" json:"uploadTime"`
	FileID       string    `bson:"fileId,omitempty" json:"fileId,omitempty"`
	Metadata     *Metadata `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Likes        Likes     `bson:"likes" json:"-"`
	Favorites    Favorites `bson:"favorites" json:"-"`
	Comments     []Comment `bson:"comments" json:"-"`
}

// NewLikes returns the zero-valued aggregate used for absent rows.
func NewLikes() Likes {
	return Likes{Count: 0, Users: []string{}}
}

func NewFavorites() Favorites {
	return Favorites{Users: []string{}}
}
