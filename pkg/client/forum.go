package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"questionforum/pkg/models"
)

type authResponse struct {
	Token string      `json:"token" validate:"required"`
	User  models.User `json:"user"`
}

type userResponse struct {
	User models.User `json:"user"`
}

type questionList struct {
	Questions  []models.Question `json:"questions" validate:"dive"`
	TotalPages int               `json:"totalPages" validate:"min=1"`
	TotalCount int               `json:"totalCount" validate:"min=0"`
}

type answerList struct {
	Answers    []models.Answer `json:"answers" validate:"dive"`
	TotalPages int             `json:"totalPages" validate:"min=1"`
	TotalCount int             `json:"totalCount" validate:"min=0"`
}

type answerResponse struct {
	Answer models.Answer `json:"answer"`
}

type questionUpdate struct {
	Type string `json:"type"`
	models.QuestionDraft
}

type answerUpdate struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type questionUpdated struct {
	Success  bool            `json:"success"`
	Question models.Question `json:"question"`
}

type answerUpdated struct {
	Success bool          `json:"success"`
	Answer  models.Answer `json:"answer"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type ratingResponse struct {
	Success bool                 `json:"success"`
	Data    models.RatingSummary `json:"data"`
}

type categoryList struct {
	Categories []models.Category `json:"categories" validate:"dive"`
}

type tagList struct {
	Tags []models.Tag `json:"tags" validate:"dive"`
}

// Registration is what the sign-up form submits.
type Registration struct {
	Username  string `json:"username"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (c *Client) Login(ctx context.Context, email, password string) (string, models.User, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.doAs(ctx, "", "login", http.MethodPost, "/auth/login", nil, body, &resp); err != nil {
		return "", models.User{}, err
	}
	return resp.Token, resp.User, nil
}

func (c *Client) Register(ctx context.Context, r Registration) (string, models.User, error) {
	var resp authResponse
	if err := c.doAs(ctx, "", "register", http.MethodPost, "/auth/register", nil, r, &resp); err != nil {
		return "", models.User{}, err
	}
	return resp.Token, resp.User, nil
}

// CheckToken validates a stored credential.
func (c *Client) CheckToken(ctx context.Context, token string) (models.User, error) {
	var resp userResponse
	if err := c.doAs(ctx, token, "check user", http.MethodGet, "/auth/checkUser", nil, nil, &resp); err != nil {
		return models.User{}, err
	}
	return resp.User, nil
}

// CheckUser validates the client's own credential.
func (c *Client) CheckUser(ctx context.Context) (models.User, error) {
	return c.CheckToken(ctx, c.tokens.Token())
}

func listValues(q models.ListQuery) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.PerPage))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	return v
}

func (c *Client) ListQuestions(ctx context.Context, q models.ListQuery) (models.Page[models.Question], error) {
	var resp questionList
	if err := c.do(ctx, "list questions", http.MethodGet, "/question", listValues(q), nil, &resp); err != nil {
		return models.Page[models.Question]{}, err
	}
	return models.Page[models.Question]{Items: resp.Questions, TotalPages: resp.TotalPages, TotalCount: resp.TotalCount}, nil
}

func (c *Client) GetQuestion(ctx context.Context, id int) (models.Question, error) {
	var q models.Question
	if err := c.do(ctx, "get question", http.MethodGet, "/question/"+strconv.Itoa(id), nil, nil, &q); err != nil {
		return models.Question{}, err
	}
	return q, nil
}

func (c *Client) CreateQuestion(ctx context.Context, d models.QuestionDraft) (models.Question, error) {
	var q models.Question
	if err := c.do(ctx, "create question", http.MethodPost, "/question", nil, d, &q); err != nil {
		return models.Question{}, err
	}
	return q, nil
}

func (c *Client) UpdateQuestion(ctx context.Context, id int, d models.QuestionDraft) (models.Question, error) {
	var resp questionUpdated
	body := questionUpdate{Type: "question", QuestionDraft: d}
	if err := c.do(ctx, "update question", http.MethodPut, "/content/"+strconv.Itoa(id), nil, body, &resp); err != nil {
		return models.Question{}, err
	}
	if !resp.Success {
		return models.Question{}, ErrRejected
	}
	return resp.Question, nil
}

func (c *Client) DeleteQuestion(ctx context.Context, id int) error {
	return c.deleteContent(ctx, "question", id)
}

func (c *Client) ListAnswers(ctx context.Context, questionID int, q models.ListQuery) (models.Page[models.Answer], error) {
	var resp answerList
	if err := c.do(ctx, "list answers", http.MethodGet, "/answer/"+strconv.Itoa(questionID), listValues(q), nil, &resp); err != nil {
		return models.Page[models.Answer]{}, err
	}
	return models.Page[models.Answer]{Items: resp.Answers, TotalPages: resp.TotalPages, TotalCount: resp.TotalCount}, nil
}

func (c *Client) CreateAnswer(ctx context.Context, d models.AnswerDraft) (models.Answer, error) {
	var resp answerResponse
	if err := c.do(ctx, "create answer", http.MethodPost, "/answer", nil, d, &resp); err != nil {
		return models.Answer{}, err
	}
	return resp.Answer, nil
}

func (c *Client) UpdateAnswer(ctx context.Context, id int, d models.AnswerDraft) (models.Answer, error) {
	var resp answerUpdated
	body := answerUpdate{Type: "answer", Content: d.Content}
	if err := c.do(ctx, "update answer", http.MethodPut, "/content/"+strconv.Itoa(id), nil, body, &resp); err != nil {
		return models.Answer{}, err
	}
	if !resp.Success {
		return models.Answer{}, ErrRejected
	}
	return resp.Answer, nil
}

func (c *Client) DeleteAnswer(ctx context.Context, id int) error {
	return c.deleteContent(ctx, "answer", id)
}

func (c *Client) deleteContent(ctx context.Context, kind string, id int) error {
	var resp successResponse
	q := url.Values{"type": {kind}}
	if err := c.do(ctx, "delete "+kind, http.MethodDelete, "/content/"+strconv.Itoa(id), q, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return ErrRejected
	}
	return nil
}

// RateAnswer submits a rating; 0 withdraws it. The returned summary is the
// server's and is applied as is.
func (c *Client) RateAnswer(ctx context.Context, answerID int, rating float64) (models.RatingSummary, error) {
	var resp ratingResponse
	body := map[string]any{"answerId": answerID, "rating": rating}
	if err := c.do(ctx, "rate answer", http.MethodPost, "/rating", nil, body, &resp); err != nil {
		return models.RatingSummary{}, err
	}
	if !resp.Success {
		return models.RatingSummary{}, ErrRejected
	}
	return resp.Data, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var resp categoryList
	if err := c.do(ctx, "list categories", http.MethodGet, "/category", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

func (c *Client) ListTags(ctx context.Context) ([]models.Tag, error) {
	var resp tagList
	if err := c.do(ctx, "list tags", http.MethodGet, "/tag", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tags, nil
}
