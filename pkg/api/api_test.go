package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"questionforum/pkg/models"
	"questionforum/pkg/store"
)

type testAPI struct {
	t   *testing.T
	api *API
	h   http.Handler
}

func newTestAPI(t *testing.T, allowRegistration bool) *testAPI {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"), store.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := NewAPI(db, Config{Secret: []byte("test-secret"), TokenTTL: time.Hour, AllowRegistration: allowRegistration}, nil)
	r := mux.NewRouter()
	a.Routes(r.PathPrefix("/api").Subrouter())
	return &testAPI{t: t, api: a, h: r}
}

func (ta *testAPI) call(method, path, token string, body any, out any) int {
	ta.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ta.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ta.h.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(ta.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (ta *testAPI) register(username string) AuthResponse {
	ta.t.Helper()
	var resp AuthResponse
	code := ta.call(http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct horse",
	}, &resp)
	require.Equal(ta.t, http.StatusCreated, code)
	return resp
}

func (ta *testAPI) ask(token, title string) models.Question {
	ta.t.Helper()
	var q models.Question
	code := ta.call(http.MethodPost, "/api/question", token, models.QuestionDraft{
		Title:       title,
		Description: "<p>details</p>",
		Category:    "Programming",
		Tags:        []string{"go"},
	}, &q)
	require.Equal(ta.t, http.StatusCreated, code)
	return q
}

func TestRegistrationDisabled(t *testing.T) {
	ta := newTestAPI(t, false)
	var errResp ErrorResponse
	code := ta.call(http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "correct horse",
	}, &errResp)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, http.StatusForbidden, errResp.Code)
}

func TestLoginAndCheckUser(t *testing.T) {
	ta := newTestAPI(t, true)
	reg := ta.register("alice")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "alice", reg.User.Username)

	var errResp ErrorResponse
	code := ta.call(http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "alice", Email: "other@example.com", Password: "correct horse",
	}, &errResp)
	assert.Equal(t, http.StatusConflict, code)

	code = ta.call(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "alice@example.com", Password: "nope"}, &errResp)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid email or password", errResp.Error)

	var login AuthResponse
	code = ta.call(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "alice@example.com", Password: "correct horse"}, &login)
	require.Equal(t, http.StatusOK, code)

	var me UserResponse
	code = ta.call(http.MethodGet, "/api/auth/checkUser", login.Token, nil, &me)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, reg.User, me.User)
}

func TestProtectedRoutesNeedAValidToken(t *testing.T) {
	ta := newTestAPI(t, true)
	reg := ta.register("alice")

	var errResp ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, ta.call(http.MethodGet, "/api/question", "", nil, &errResp))
	assert.Equal(t, "Authentication required", errResp.Error)
	assert.Equal(t, http.StatusUnauthorized, ta.call(http.MethodGet, "/api/question", "garbage", nil, &errResp))

	ta.api.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, http.StatusUnauthorized, ta.call(http.MethodGet, "/api/question", reg.Token, nil, &errResp))
	assert.Equal(t, "Token expired", errResp.Error)
}

func TestQuestionLifecycle(t *testing.T) {
	ta := newTestAPI(t, true)
	alice, bob := ta.register("alice"), ta.register("bob")

	for _, title := range []string{"First", "Second", "Third"} {
		ta.ask(alice.Token, title)
	}

	var list QuestionListResponse
	require.Equal(t, http.StatusOK, ta.call(http.MethodGet, "/api/question?page=1&limit=2", bob.Token, nil, &list))
	assert.Equal(t, 3, list.TotalCount)
	assert.Equal(t, 2, list.TotalPages)
	require.Len(t, list.Questions, 2)
	assert.Equal(t, "Third", list.Questions[0].Title)

	require.Equal(t, http.StatusOK, ta.call(http.MethodGet, "/api/question?search=sec", bob.Token, nil, &list))
	assert.Equal(t, 1, list.TotalCount)
	id := list.Questions[0].ID

	var q models.Question
	require.Equal(t, http.StatusOK, ta.call(http.MethodGet, "/api/question/"+itoa(id), bob.Token, nil, &q))
	assert.Equal(t, "Second", q.Title)
	assert.Equal(t, []string{"go"}, q.Tags)

	update := ContentUpdateRequest{Type: "question", Title: "Second, edited", Description: "<p>more</p>", Category: "General"}
	var errResp ErrorResponse
	assert.Equal(t, http.StatusForbidden, ta.call(http.MethodPut, "/api/content/"+itoa(id), bob.Token, update, &errResp))

	var updated ContentResponse
	require.Equal(t, http.StatusOK, ta.call(http.MethodPut, "/api/content/"+itoa(id), alice.Token, update, &updated))
	assert.True(t, updated.Success)
	require.NotNil(t, updated.Question)
	assert.Equal(t, "Second, edited", updated.Question.Title)
	assert.Empty(t, updated.Question.Tags)

	var ok map[string]bool
	require.Equal(t, http.StatusOK, ta.call(http.MethodDelete, "/api/content/"+itoa(id)+"?type=question", alice.Token, nil, &ok))
	assert.True(t, ok["success"])
	assert.Equal(t, http.StatusNotFound, ta.call(http.MethodGet, "/api/question/"+itoa(id), bob.Token, nil, &errResp))
}

func TestCreateQuestionValidation(t *testing.T) {
	ta := newTestAPI(t, true)
	alice := ta.register("alice")

	var errResp ErrorResponse
	code := ta.call(http.MethodPost, "/api/question", alice.Token, models.QuestionDraft{
		Title:       "Title",
		Description: models.EmptyParagraph,
		Category:    "Programming",
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, errResp.Error, "description")

	code = ta.call(http.MethodPost, "/api/question", alice.Token, models.QuestionDraft{
		Title:       "Title",
		Description: "<p>x</p>",
		Category:    "Cooking",
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Unknown category", errResp.Error)
}

func TestAnswersAndRatings(t *testing.T) {
	ta := newTestAPI(t, true)
	alice, bob := ta.register("alice"), ta.register("bob")
	q := ta.ask(alice.Token, "Question")

	var created AnswerResponse
	require.Equal(t, http.StatusCreated, ta.call(http.MethodPost, "/api/answer", bob.Token,
		models.AnswerDraft{QuestionID: q.ID, Content: "<p>an answer</p>"}, &created))
	a := created.Answer
	assert.Equal(t, "bob", a.AuthorUsername)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusForbidden, ta.call(http.MethodPost, "/api/rating", bob.Token,
		RatingRequest{AnswerID: a.ID, Rating: 5}, &errResp))
	assert.Equal(t, "You cannot rate your own answer", errResp.Error)
	assert.Equal(t, http.StatusBadRequest, ta.call(http.MethodPost, "/api/rating", alice.Token,
		RatingRequest{AnswerID: a.ID, Rating: 4.2}, &errResp))

	var rated RatingResponse
	require.Equal(t, http.StatusOK, ta.call(http.MethodPost, "/api/rating", alice.Token,
		RatingRequest{AnswerID: a.ID, Rating: 4.5}, &rated))
	assert.Equal(t, RatingResponse{Success: true, Data: models.RatingSummary{UserRating: 4.5, AverageRating: 4.5, RatingCount: 1}}, rated)

	var list AnswerListResponse
	require.Equal(t, http.StatusOK, ta.call(http.MethodGet, "/api/answer/"+itoa(q.ID)+"?page=1", alice.Token, nil, &list))
	require.Len(t, list.Answers, 1)
	assert.Equal(t, 4.5, list.Answers[0].UserRating)

	require.Equal(t, http.StatusOK, ta.call(http.MethodGet, "/api/answer/"+itoa(q.ID), bob.Token, nil, &list))
	assert.Zero(t, list.Answers[0].UserRating)
	assert.Equal(t, 4.5, list.Answers[0].AverageRating)

	var updated ContentResponse
	require.Equal(t, http.StatusOK, ta.call(http.MethodPut, "/api/content/"+itoa(a.ID), bob.Token,
		ContentUpdateRequest{Type: "answer", Content: "<p>better</p>"}, &updated))
	require.NotNil(t, updated.Answer)
	assert.Equal(t, "<p>better</p>", updated.Answer.Content)

	assert.Equal(t, http.StatusBadRequest, ta.call(http.MethodDelete, "/api/content/"+itoa(a.ID), bob.Token, nil, &errResp))
	assert.Equal(t, http.StatusForbidden, ta.call(http.MethodDelete, "/api/content/"+itoa(a.ID)+"?type=answer", alice.Token, nil, &errResp))
	var ok map[string]bool
	assert.Equal(t, http.StatusOK, ta.call(http.MethodDelete, "/api/content/"+itoa(a.ID)+"?type=answer", bob.Token, nil, &ok))

	assert.Equal(t, http.StatusNotFound, ta.call(http.MethodGet, "/api/answer/999", bob.Token, nil, &errResp))
}

func TestCategoriesTagsAndCORS(t *testing.T) {
	ta := newTestAPI(t, true)
	alice := ta.register("alice")
	ta.ask(alice.Token, "Question")

	var categories CategoryListResponse
	require.Equal(t, http.StatusOK, ta.call(http.MethodGet, "/api/category", alice.Token, nil, &categories))
	assert.Len(t, categories.Categories, len(store.DefaultCategories))

	var tags TagListResponse
	require.Equal(t, http.StatusOK, ta.call(http.MethodGet, "/api/tag", alice.Token, nil, &tags))
	assert.Equal(t, []models.Tag{{Name: "go"}}, tags.Tags)

	req := httptest.NewRequest(http.MethodOptions, "/api/question", nil)
	rec := httptest.NewRecorder()
	ta.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func itoa(n int) string { return strconv.Itoa(n) }
