// Package models contains data structures for the application's domain models.
package models

import "time"

// DefaultUserStatus is assigned to every newly created user.
const DefaultUserStatus = "I am new!"

// User represents a registered author of posts.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Name      string    `gorm:"not null" json:"name"`
	Status    string    `gorm:"not null;default:'I am new!'" json:"status"`
	Posts     []Post    `gorm:"many2many:user_posts;constraint:OnDelete:CASCADE" json:"posts,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreatorRef is the public projection of a post's creator.
type CreatorRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// Ref projects the user into the shape embedded in posts and events.
func (u *User) Ref() CreatorRef {
	if u == nil {
		return CreatorRef{}
	}
	return CreatorRef{ID: u.ID, Name: u.Name}
}
