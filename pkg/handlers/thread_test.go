package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questionforum/pkg/listsync"
	"questionforum/pkg/models"
)

// racingAPI holds its first question fetch until released and fails the
// second one, so a later load can land ahead of an earlier one.
type racingAPI struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (a *racingAPI) GetQuestion(ctx context.Context, id int) (models.Question, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	a.mu.Unlock()
	switch n {
	case 1:
		close(a.entered)
		<-a.release
	case 2:
		return models.Question{}, errors.New("upstream hiccup")
	}
	return models.Question{ID: id, Title: "Racing loads"}, nil
}

func (a *racingAPI) UpdateQuestion(ctx context.Context, id int, d models.QuestionDraft) (models.Question, error) {
	return models.Question{}, models.ErrForbidden
}

func (a *racingAPI) DeleteQuestion(ctx context.Context, id int) error { return models.ErrForbidden }

func (a *racingAPI) ListAnswers(ctx context.Context, questionID int, q models.ListQuery) (models.Page[models.Answer], error) {
	return models.Page[models.Answer]{TotalPages: 1}, nil
}

func (a *racingAPI) CreateAnswer(ctx context.Context, d models.AnswerDraft) (models.Answer, error) {
	return models.Answer{}, models.ErrForbidden
}

func (a *racingAPI) UpdateAnswer(ctx context.Context, id int, d models.AnswerDraft) (models.Answer, error) {
	return models.Answer{}, models.ErrForbidden
}

func (a *racingAPI) DeleteAnswer(ctx context.Context, id int) error { return models.ErrForbidden }

func (a *racingAPI) RateAnswer(ctx context.Context, answerID int, rating float64) (models.RatingSummary, error) {
	return models.RatingSummary{}, models.ErrForbidden
}

func TestLoadThreadRetriesAfterLosingToFailedLoad(t *testing.T) {
	api := &racingAPI{entered: make(chan struct{}), release: make(chan struct{})}
	th := listsync.NewThread(3, api, 5, nil, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- loadThread(ctx, th) }()

	<-api.entered
	require.Error(t, th.Load(ctx))
	close(api.release)

	require.NoError(t, <-done)
	q, ok := th.Question()
	require.True(t, ok)
	assert.Equal(t, "Racing loads", q.Title)
	assert.Equal(t, 3, api.calls)
}

func TestLoadThreadFailureLeavesQuestionMissing(t *testing.T) {
	api := &racingAPI{entered: make(chan struct{}), release: make(chan struct{})}
	api.calls = 1
	th := listsync.NewThread(3, api, 5, nil, nil)

	err := loadThread(context.Background(), th)
	assert.EqualError(t, err, "upstream hiccup")
	_, ok := th.Question()
	assert.False(t, ok)
}
