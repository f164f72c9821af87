package domain

import "time"

// Image is a generated gallery entry.
type Image struct {
	ID                int64      `json:"id"`
	Filename          string     `json:"filename"`
	Style             string     `json:"hijabStyle"`
	Caption           string     `json:"caption"`
	CreatedAt         time.Time  `json:"createdAt"`
	Provider          string     `json:"provider"`
	Favorited         bool       `json:"favorited"`
	PostedToInstagram bool       `json:"postedToInstagram"`
	PostedAt          *time.Time `json:"postedAt,omitempty"`
}

// GalleryDocument is the on-disk shape of the gallery file.
type GalleryDocument struct {
	Images []Image `json:"images"`
}
