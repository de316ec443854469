package models

import (
	"encoding/json"
	"time"
)

// Post represents a feed entry with an attached image.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ImageURL  string    `gorm:"not null" json:"imageUrl"`
	CreatorID uint      `gorm:"not null;index" json:"creatorId"`
	Creator   *User     `gorm:"foreignKey:CreatorID" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarshalJSON renders the creator as its {id, name} projection.
func (p Post) MarshalJSON() ([]byte, error) {
	type plain Post
	out := struct {
		plain
		Creator CreatorRef `json:"creator"`
	}{plain: plain(p), Creator: CreatorRef{ID: p.CreatorID}}
	if p.Creator != nil {
		out.Creator = p.Creator.Ref()
	}
	return json.Marshal(out)
}

// PostPage is one page of the global feed.
type PostPage struct {
	Posts      []Post `json:"posts"`
	TotalItems int64  `json:"totalItems"`
	Page       int    `json:"page"`
	PageSize   int    `json:"perPage"`
}
