package listsync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"questionforum/pkg/models"
	"questionforum/pkg/session"
)

var (
	ErrInvalidRating    = errors.New("listsync: not a rating level")
	ErrSelfRating       = errors.New("listsync: you cannot rate your own answer")
	ErrNotAuthenticated = errors.New("listsync: please log in to rate answers")
)

// NextRating is the value submitted when a level is clicked: the level
// itself, or 0 when it is already the user's rating.
func NextRating(current, clicked float64) float64 {
	if current == clicked {
		return 0
	}
	return clicked
}

// CanRate reports whether the interactive control exists for this viewer:
// signed in and not the author.
func CanRate(sess session.Context, a models.Answer) bool {
	if sess == nil || !sess.IsAuthenticated() {
		return false
	}
	u, ok := sess.CurrentUser()
	return ok && u.ID != a.AuthorID
}

type RatingLevel struct {
	Value  float64
	Active bool
	Half   bool
}

// RatingControl is what the rating widget of one answer renders.
type RatingControl struct {
	AnswerID      int
	Interactive   bool
	Disabled      bool
	Levels        []RatingLevel
	UserRating    float64
	AverageRating float64
	RatingCount   int
	Own           bool
}

// Summary is the read-only line shown to everyone.
func (c RatingControl) Summary() string {
	if c.AverageRating <= 0 {
		return "No ratings yet"
	}
	noun := "ratings"
	if c.RatingCount == 1 {
		noun = "rating"
	}
	return fmt.Sprintf("%.1f / 5 (%d %s)", c.AverageRating, c.RatingCount, noun)
}

// ShowUserRating reports whether "Your rating" is shown.
func (c RatingControl) ShowUserRating() bool {
	return c.UserRating > 0 && !c.Own
}

// RatingControl builds the widget for an answer. Levels are only filled in
// when the control is interactive.
func (t *Thread) RatingControl(a models.Answer) RatingControl {
	c := RatingControl{
		AnswerID:      a.ID,
		Interactive:   CanRate(t.sess, a),
		UserRating:    a.UserRating,
		AverageRating: a.AverageRating,
		RatingCount:   a.RatingCount,
		Own:           isAuthor(t.sess, a.AuthorID),
	}
	if !c.Interactive {
		return c
	}
	c.Disabled = t.answers.Busy(answerOp("rate", a.ID))
	for _, v := range models.RatingLevels() {
		c.Levels = append(c.Levels, RatingLevel{
			Value:  v,
			Active: v <= a.UserRating,
			Half:   v != float64(int(v)),
		})
	}
	return c
}

// Rate submits a click on level for an answer on the current page. The
// answer's rating fields are replaced with what the server returns; nothing
// is averaged locally. A second click on the same answer while the first is
// in flight fails with ErrBusy.
func (t *Thread) Rate(ctx context.Context, answerID int, level float64) (models.RatingSummary, error) {
	if !models.IsRatingLevel(level, false) {
		return models.RatingSummary{}, ErrInvalidRating
	}
	a, ok := t.answers.Find(answerID)
	if !ok {
		return models.RatingSummary{}, models.ErrNotFound
	}
	if !t.sess.IsAuthenticated() {
		return models.RatingSummary{}, ErrNotAuthenticated
	}
	if !CanRate(t.sess, a) {
		return models.RatingSummary{}, ErrSelfRating
	}

	done, err := t.answers.begin(answerOp("rate", answerID))
	if err != nil {
		return models.RatingSummary{}, err
	}
	defer done()

	submitted := NextRating(a.UserRating, level)
	summary, err := t.api.RateAnswer(ctx, answerID, submitted)
	if err != nil {
		return models.RatingSummary{}, t.answers.Report(err)
	}
	t.answers.ApplyUpdated(answerID, func(a *models.Answer) { a.ApplyRating(summary) })
	t.log.Debug("answer rated",
		zap.Int("answer", answerID),
		zap.Float64("submitted", submitted),
		zap.Float64("average", summary.AverageRating),
		zap.Int("count", summary.RatingCount))
	return summary, nil
}
