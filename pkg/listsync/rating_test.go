package listsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questionforum/pkg/models"
	"questionforum/pkg/session"
)

func TestNextRatingToggles(t *testing.T) {
	assert.Equal(t, 3.5, NextRating(0, 3.5))
	assert.Equal(t, 4.0, NextRating(3.5, 4))
	assert.Equal(t, 0.0, NextRating(3.5, 3.5))
}

func TestRateAppliesServerValuesVerbatim(t *testing.T) {
	api := newFakeAPI(2)
	api.summary = &models.RatingSummary{AverageRating: 4.1, RatingCount: 7}
	th := loadedThread(t, api, signedIn(t, 5))

	s, err := th.Rate(context.Background(), 1, 4.5)
	require.NoError(t, err)
	assert.Equal(t, models.RatingSummary{UserRating: 4.5, AverageRating: 4.1, RatingCount: 7}, s)

	a, ok := th.Answers().Find(1)
	require.True(t, ok)
	assert.Equal(t, 4.5, a.UserRating)
	assert.Equal(t, 4.1, a.AverageRating)
	assert.Equal(t, 7, a.RatingCount)
	assert.Equal(t, "4.1 / 5 (7 ratings)", th.RatingControl(a).Summary())
}

func TestRateSameLevelClearsRating(t *testing.T) {
	api := newFakeAPI(1)
	th := loadedThread(t, api, signedIn(t, 5))
	ctx := context.Background()

	_, err := th.Rate(ctx, 1, 3)
	require.NoError(t, err)
	_, err = th.Rate(ctx, 1, 3)
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 0}, api.rated)
	a, _ := th.Answers().Find(1)
	assert.Zero(t, a.UserRating)
	assert.False(t, th.RatingControl(a).ShowUserRating())
}

func TestRateRejectsInvalidLevels(t *testing.T) {
	th := loadedThread(t, newFakeAPI(1), signedIn(t, 5))
	for _, v := range []float64{0, 0.25, 5.5, -1} {
		_, err := th.Rate(context.Background(), 1, v)
		assert.ErrorIs(t, err, ErrInvalidRating, "level %v", v)
	}
}

func TestRateOwnAnswer(t *testing.T) {
	api := newFakeAPI(1)
	th := loadedThread(t, api, signedIn(t, 2))
	a, _ := th.Answers().Find(1)

	c := th.RatingControl(a)
	assert.False(t, c.Interactive)
	assert.True(t, c.Own)
	assert.Empty(t, c.Levels)

	_, err := th.Rate(context.Background(), 1, 4)
	assert.ErrorIs(t, err, ErrSelfRating)
	assert.Empty(t, api.rated)
}

func TestRateAnonymous(t *testing.T) {
	api := newFakeAPI(1)
	th := loadedThread(t, api, session.Anonymous{})
	a, _ := th.Answers().Find(1)

	c := th.RatingControl(a)
	assert.False(t, c.Interactive)
	assert.False(t, c.Own)
	assert.Equal(t, "No ratings yet", c.Summary())

	_, err := th.Rate(context.Background(), 1, 4)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRatingControlLevels(t *testing.T) {
	api := newFakeAPI(1)
	api.answers[0].UserRating = 2.5
	th := loadedThread(t, api, signedIn(t, 5))
	a, _ := th.Answers().Find(1)

	c := th.RatingControl(a)
	require.True(t, c.Interactive)
	require.Len(t, c.Levels, 10)
	assert.Equal(t, RatingLevel{Value: 0.5, Active: true, Half: true}, c.Levels[0])
	assert.Equal(t, RatingLevel{Value: 2.5, Active: true, Half: true}, c.Levels[4])
	assert.Equal(t, RatingLevel{Value: 3, Active: false, Half: false}, c.Levels[5])
	assert.True(t, c.ShowUserRating())
}

func TestConcurrentRateIsBusy(t *testing.T) {
	api := newFakeAPI(2)
	gate := make(chan struct{})
	api.rateGate = gate
	th := loadedThread(t, api, signedIn(t, 5))
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := th.Rate(ctx, 1, 4)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return th.Answers().Busy(answerOp("rate", 1)) }, time.Second, time.Millisecond)

	a, _ := th.Answers().Find(1)
	assert.True(t, th.RatingControl(a).Disabled)
	_, err := th.Rate(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrBusy)

	close(gate)
	wg.Wait()
	assert.False(t, th.Answers().Busy(answerOp("rate", 1)))
	assert.Equal(t, []float64{4}, api.rated)
}

func TestRateFailureLeavesAnswer(t *testing.T) {
	api := newFakeAPI(1)
	th := loadedThread(t, api, signedIn(t, 5))
	api.fail["rate"] = models.ErrForbidden
	before, _ := th.Answers().Find(1)

	_, err := th.Rate(context.Background(), 1, 4)
	assert.ErrorIs(t, err, models.ErrForbidden)
	after, _ := th.Answers().Find(1)
	assert.Equal(t, before, after)
}
