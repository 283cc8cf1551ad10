package models

import (
	"errors"
	"time"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

type User struct {
	ID        int    `json:"userid" validate:"gt=0"`
	Username  string `json:"username" validate:"required"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email" validate:"omitempty,email"`
}

// DisplayName prefers the first name, the way the forum greets people.
func (u User) DisplayName() string {
	if u.Firstname != "" {
		return u.Firstname
	}
	return u.Username
}

type Question struct {
	ID             int       `json:"id" validate:"gt=0"`
	Title          string    `json:"title" validate:"required"`
	Description    string    `json:"description"`
	Tags           []string  `json:"tags" validate:"max=5,unique,dive,required"`
	Category       string    `json:"category"`
	AuthorUsername string    `json:"authorUsername"`
	AuthorID       int       `json:"authorId" validate:"gt=0"`
	CreatedAt      time.Time `json:"createdAt" validate:"required"`
}

func (q Question) Key() int           { return q.ID }
func (q Question) Created() time.Time { return q.CreatedAt }

// ApplyEdit copies the owner-editable fields of an updated question.
func (q *Question) ApplyEdit(updated Question) {
	q.Title = updated.Title
	q.Description = updated.Description
	q.Tags = append([]string(nil), updated.Tags...)
	q.Category = updated.Category
}

type Answer struct {
	ID             int       `json:"id" validate:"gt=0"`
	QuestionID     int       `json:"questionId" validate:"gt=0"`
	Content        string    `json:"content"`
	AuthorUsername string    `json:"authorUsername"`
	AuthorID       int       `json:"authorId" validate:"gt=0"`
	CreatedAt      time.Time `json:"createdAt" validate:"required"`
	UserRating     float64   `json:"userRating" validate:"rating"`
	AverageRating  float64   `json:"averageRating" validate:"min=0,max=5"`
	RatingCount    int       `json:"ratingCount" validate:"min=0"`
}

func (a Answer) Key() int           { return a.ID }
func (a Answer) Created() time.Time { return a.CreatedAt }

// ApplyEdit copies the owner-editable fields of an updated answer. Rating
// fields are left alone; they only change through ApplyRating.
func (a *Answer) ApplyEdit(updated Answer) {
	a.Content = updated.Content
}

// ApplyRating replaces the rating summary with the one the server computed.
func (a *Answer) ApplyRating(s RatingSummary) {
	a.UserRating = s.UserRating
	a.AverageRating = s.AverageRating
	a.RatingCount = s.RatingCount
}

// RatingSummary is everything a client ever knows about the ratings of an
// answer: its own rating plus the aggregate over all raters.
type RatingSummary struct {
	UserRating    float64 `json:"userRating" validate:"rating"`
	AverageRating float64 `json:"averageRating" validate:"min=0,max=5"`
	RatingCount   int     `json:"ratingCount" validate:"min=0"`
}

type Category struct {
	ID   int    `json:"id" validate:"gt=0"`
	Name string `json:"name" validate:"required"`
}

type Tag struct {
	Name string `json:"name" validate:"required"`
}
