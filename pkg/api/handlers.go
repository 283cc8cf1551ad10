// Package api is the forum REST API: questions, answers, ratings,
// categories and tags behind JWT bearer authentication.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"questionforum/pkg/models"
	"questionforum/pkg/store"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

type Config struct {
	Secret            []byte
	TokenTTL          time.Duration
	AllowRegistration bool
}

type API struct {
	DB  *store.DB
	Log *zap.Logger

	secret            []byte
	tokenTTL          time.Duration
	allowRegistration bool
	now               func() time.Time
}

func NewAPI(db *store.DB, cfg Config, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &API{
		DB:                db,
		Log:               log,
		secret:            cfg.Secret,
		tokenTTL:          ttl,
		allowRegistration: cfg.AllowRegistration,
		now:               time.Now,
	}
}

// Routes mounts the API on r, which is expected to be the /api subrouter.
func (api *API) Routes(r *mux.Router) {
	r.Use(CORSMiddleware)

	r.HandleFunc("/auth/login", api.Login).Methods("POST", "OPTIONS")
	r.HandleFunc("/auth/register", api.Register).Methods("POST", "OPTIONS")

	protected := r.NewRoute().Subrouter()
	protected.Use(api.AuthMiddleware)
	protected.HandleFunc("/auth/checkUser", api.CheckUser).Methods("GET", "OPTIONS")
	protected.HandleFunc("/question", api.ListQuestions).Methods("GET", "OPTIONS")
	protected.HandleFunc("/question", api.CreateQuestion).Methods("POST")
	protected.HandleFunc("/question/{id:[0-9]+}", api.GetQuestion).Methods("GET", "OPTIONS")
	protected.HandleFunc("/answer", api.CreateAnswer).Methods("POST", "OPTIONS")
	protected.HandleFunc("/answer/{id:[0-9]+}", api.ListAnswers).Methods("GET", "OPTIONS")
	protected.HandleFunc("/content/{id:[0-9]+}", api.UpdateContent).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/content/{id:[0-9]+}", api.DeleteContent).Methods("DELETE")
	protected.HandleFunc("/rating", api.RateAnswer).Methods("POST", "OPTIONS")
	protected.HandleFunc("/category", api.ListCategories).Methods("GET", "OPTIONS")
	protected.HandleFunc("/tag", api.ListTags).Methods("GET", "OPTIONS")
}

func (api *API) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			api.Log.Warn("error encoding response", zap.Error(err))
		}
	}
}

func (api *API) respondError(w http.ResponseWriter, status int, message string) {
	api.respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  status,
	})
}

// respondStoreError maps storage and validation failures to responses.
// what names the record, e.g. "Question".
func (api *API) respondStoreError(w http.ResponseWriter, r *http.Request, err error, what string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		api.respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, models.ErrNotFound):
		api.respondError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, models.ErrForbidden):
		api.respondError(w, http.StatusForbidden, "You can only change your own content")
	case errors.Is(err, store.ErrUnknownCategory):
		api.respondError(w, http.StatusBadRequest, "Unknown category")
	case errors.Is(err, store.ErrInvalidRating):
		api.respondError(w, http.StatusBadRequest, "Rating must be between 0.5 and 5 in steps of 0.5")
	default:
		api.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		api.respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decode reads a JSON body into v and validates it.
func (api *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		api.respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := models.Validate(v); err != nil {
		api.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	return id, err == nil && id > 0
}

func listQuery(r *http.Request) models.ListQuery {
	v := r.URL.Query()
	page, err := strconv.Atoi(v.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(v.Get("limit"))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	return models.ListQuery{
		Page:     page,
		PerPage:  min(limit, maxLimit),
		Search:   strings.TrimSpace(v.Get("search")),
		Category: strings.TrimSpace(v.Get("category")),
	}
}

// POST /api/auth/login
func (api *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !api.decode(w, r, &req) {
		return
	}

	user, err := api.DB.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, store.ErrInvalidCredentials) {
		api.respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		api.respondStoreError(w, r, err, "User")
		return
	}
	api.issue(w, http.StatusOK, user)
}

// POST /api/auth/register
func (api *API) Register(w http.ResponseWriter, r *http.Request) {
	if !api.allowRegistration {
		api.respondError(w, http.StatusForbidden, "New user registration is currently disabled")
		return
	}
	var req RegisterRequest
	if !api.decode(w, r, &req) {
		return
	}

	user, err := api.DB.CreateUser(r.Context(), models.User{
		Username:  strings.TrimSpace(req.Username),
		Firstname: strings.TrimSpace(req.Firstname),
		Lastname:  strings.TrimSpace(req.Lastname),
		Email:     req.Email,
	}, req.Password)
	if errors.Is(err, store.ErrDuplicate) {
		api.respondError(w, http.StatusConflict, "Username or email already registered")
		return
	}
	if err != nil {
		api.respondStoreError(w, r, err, "User")
		return
	}
	api.Log.Info("user registered", zap.Int("user", user.ID))
	api.issue(w, http.StatusCreated, user)
}

func (api *API) issue(w http.ResponseWriter, status int, user models.User) {
	token, err := api.generateToken(user)
	if err != nil {
		api.Log.Error("error generating token", zap.Error(err))
		api.respondError(w, http.StatusInternalServerError, "Error generating token")
		return
	}
	api.respondJSON(w, status, AuthResponse{Token: token, User: user})
}

// GET /api/auth/checkUser
func (api *API) CheckUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	user, err := api.DB.UserByID(r.Context(), userID)
	if errors.Is(err, models.ErrNotFound) {
		// The token outlived its user.
		api.respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	if err != nil {
		api.respondStoreError(w, r, err, "User")
		return
	}
	api.respondJSON(w, http.StatusOK, UserResponse{User: user})
}

// GET /api/question
func (api *API) ListQuestions(w http.ResponseWriter, r *http.Request) {
	page, err := api.DB.ListQuestions(r.Context(), listQuery(r))
	if err != nil {
		api.respondStoreError(w, r, err, "Question")
		return
	}
	api.respondJSON(w, http.StatusOK, QuestionListResponse{
		Questions:  page.Items,
		TotalPages: page.TotalPages,
		TotalCount: page.TotalCount,
	})
}

// GET /api/question/{id}
func (api *API) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		api.respondError(w, http.StatusBadRequest, "Invalid question ID")
		return
	}
	q, err := api.DB.Question(r.Context(), id)
	if err != nil {
		api.respondStoreError(w, r, err, "Question")
		return
	}
	api.respondJSON(w, http.StatusOK, q)
}

// POST /api/question
func (api *API) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var d models.QuestionDraft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		api.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		api.respondStoreError(w, r, err, "Question")
		return
	}

	userID, _ := UserID(r.Context())
	q, err := api.DB.CreateQuestion(r.Context(), userID, d)
	if err != nil {
		api.respondStoreError(w, r, err, "Question")
		return
	}
	api.respondJSON(w, http.StatusCreated, q)
}

// GET /api/answer/{questionId}
func (api *API) ListAnswers(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(r)
	if !ok {
		api.respondError(w, http.StatusBadRequest, "Invalid question ID")
		return
	}
	q := listQuery(r)
	if r.URL.Query().Get("limit") == "" {
		q.PerPage = 5
	}
	userID, _ := UserID(r.Context())
	page, err := api.DB.ListAnswers(r.Context(), questionID, userID, q)
	if err != nil {
		api.respondStoreError(w, r, err, "Question")
		return
	}
	api.respondJSON(w, http.StatusOK, AnswerListResponse{
		Answers:    page.Items,
		TotalPages: page.TotalPages,
		TotalCount: page.TotalCount,
	})
}

// POST /api/answer
func (api *API) CreateAnswer(w http.ResponseWriter, r *http.Request) {
	var d models.AnswerDraft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		api.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		api.respondStoreError(w, r, err, "Answer")
		return
	}

	userID, _ := UserID(r.Context())
	a, err := api.DB.CreateAnswer(r.Context(), userID, d)
	if err != nil {
		api.respondStoreError(w, r, err, "Question")
		return
	}
	api.respondJSON(w, http.StatusCreated, AnswerResponse{Answer: a})
}

// PUT /api/content/{id}
func (api *API) UpdateContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		api.respondError(w, http.StatusBadRequest, "Invalid content ID")
		return
	}
	var req ContentUpdateRequest
	if !api.decode(w, r, &req) {
		return
	}
	userID, _ := UserID(r.Context())

	switch req.Type {
	case "question":
		d := models.QuestionDraft{
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			Tags:        req.Tags,
		}.Normalize()
		if err := d.Validate(); err != nil {
			api.respondStoreError(w, r, err, "Question")
			return
		}
		q, err := api.DB.UpdateQuestion(r.Context(), id, userID, d)
		if err != nil {
			api.respondStoreError(w, r, err, "Question")
			return
		}
		api.respondJSON(w, http.StatusOK, ContentResponse{Success: true, Question: &q})
	default:
		existing, err := api.DB.Answer(r.Context(), id, userID)
		if err != nil {
			api.respondStoreError(w, r, err, "Answer")
			return
		}
		d := models.AnswerDraft{QuestionID: existing.QuestionID, Content: req.Content}.Normalize()
		if err := d.Validate(); err != nil {
			api.respondStoreError(w, r, err, "Answer")
			return
		}
		a, err := api.DB.UpdateAnswer(r.Context(), id, userID, d)
		if err != nil {
			api.respondStoreError(w, r, err, "Answer")
			return
		}
		api.respondJSON(w, http.StatusOK, ContentResponse{Success: true, Answer: &a})
	}
}

// DELETE /api/content/{id}?type=question|answer
func (api *API) DeleteContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		api.respondError(w, http.StatusBadRequest, "Invalid content ID")
		return
	}
	userID, _ := UserID(r.Context())

	var err error
	switch kind := r.URL.Query().Get("type"); kind {
	case "question":
		err = api.DB.DeleteQuestion(r.Context(), id, userID)
	case "answer":
		err = api.DB.DeleteAnswer(r.Context(), id, userID)
	default:
		api.respondError(w, http.StatusBadRequest, "type must be question or answer")
		return
	}
	if err != nil {
		api.respondStoreError(w, r, err, "Content")
		return
	}
	api.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// POST /api/rating
func (api *API) RateAnswer(w http.ResponseWriter, r *http.Request) {
	var req RatingRequest
	if !api.decode(w, r, &req) {
		return
	}
	userID, _ := UserID(r.Context())

	summary, err := api.DB.RateAnswer(r.Context(), req.AnswerID, userID, req.Rating)
	if errors.Is(err, models.ErrForbidden) {
		api.respondError(w, http.StatusForbidden, "You cannot rate your own answer")
		return
	}
	if err != nil {
		api.respondStoreError(w, r, err, "Answer")
		return
	}
	api.respondJSON(w, http.StatusOK, RatingResponse{Success: true, Data: summary})
}

// GET /api/category
func (api *API) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := api.DB.Categories(r.Context())
	if err != nil {
		api.respondStoreError(w, r, err, "Category")
		return
	}
	api.respondJSON(w, http.StatusOK, CategoryListResponse{Categories: categories})
}

// GET /api/tag
func (api *API) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := api.DB.Tags(r.Context())
	if err != nil {
		api.respondStoreError(w, r, err, "Tag")
		return
	}
	api.respondJSON(w, http.StatusOK, TagListResponse{Tags: tags})
}
