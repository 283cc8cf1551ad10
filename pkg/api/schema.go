package api

import "questionforum/pkg/models"

// Request Types
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=2,max=50"`
	Firstname string `json:"firstname" validate:"max=100"`
	Lastname  string `json:"lastname" validate:"max=100"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

// ContentUpdateRequest edits a question or an answer; Type picks which
// fields apply.
type ContentUpdateRequest struct {
	Type        string   `json:"type" validate:"oneof=question answer"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Content     string   `json:"content"`
}

type RatingRequest struct {
	AnswerID int     `json:"answerId" validate:"gt=0"`
	Rating   float64 `json:"rating" validate:"rating"`
}

// Response Types
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type UserResponse struct {
	User models.User `json:"user"`
}

type QuestionListResponse struct {
	Questions  []models.Question `json:"questions"`
	TotalPages int               `json:"totalPages"`
	TotalCount int               `json:"totalCount"`
}

type AnswerListResponse struct {
	Answers    []models.Answer `json:"answers"`
	TotalPages int             `json:"totalPages"`
	TotalCount int             `json:"totalCount"`
}

type AnswerResponse struct {
	Answer models.Answer `json:"answer"`
}

type ContentResponse struct {
	Success  bool             `json:"success"`
	Question *models.Question `json:"question,omitempty"`
	Answer   *models.Answer   `json:"answer,omitempty"`
}

type RatingResponse struct {
	Success bool                 `json:"success"`
	Data    models.RatingSummary `json:"data"`
}

type CategoryListResponse struct {
	Categories []models.Category `json:"categories"`
}

type TagListResponse struct {
	Tags []models.Tag `json:"tags"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
