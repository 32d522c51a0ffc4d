package model

import "gorm.io/gorm"

type GalleryItem struct {
	gorm.Model
	UserID    uint   `json:"user_id" gorm:"index;not null"`
	Kind      string `json:"kind" gorm:"index;not null"` // image | video
	URL       string `json:"url" gorm:"not null"`
	ObjectKey string `json:"-"`
	Title     string `json:"title"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	SortOrder int    `json:"sort_order" gorm:"default:0"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}
