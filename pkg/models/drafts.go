package models

import "strings"

const (
	MaxTags        = 5
	MaxAnswerWords = 2000
)

// QuestionDraft is what the ask and edit forms submit.
type QuestionDraft struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"richtext"`
	Category    string   `json:"category" validate:"required"`
	Tags        []string `json:"tags" validate:"max=5,unique,dive,required"`
}

// Normalize trims the title and tags and sanitizes the description.
func (d QuestionDraft) Normalize() QuestionDraft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = SanitizeRichText(d.Description)
	d.Category = strings.TrimSpace(d.Category)
	tags := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		tags = append(tags, strings.TrimSpace(t))
	}
	d.Tags = tags
	return d
}

// Validate returns a *ValidationError describing every failing field.
func (d QuestionDraft) Validate() error {
	return Validate(d)
}

type AnswerDraft struct {
	QuestionID int    `json:"questionId" validate:"gt=0"`
	Content    string `json:"content" validate:"richtext,maxwords"`
}

func (d AnswerDraft) Normalize() AnswerDraft {
	d.Content = SanitizeRichText(d.Content)
	return d
}

func (d AnswerDraft) Validate() error {
	return Validate(d)
}

// SplitTags turns the comma separated tag field of a form into a list.
// Blank entries are dropped.
func SplitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
