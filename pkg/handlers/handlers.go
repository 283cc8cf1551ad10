// Package handlers serves the forum's web pages. Pages never talk to the
// API directly; they drive the listsync controllers held in each browser's
// View.
package handlers

import (
	"context"
	"embed"
	"encoding/gob"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"questionforum/pkg/client"
	"questionforum/pkg/listsync"
	"questionforum/pkg/logging"
	"questionforum/pkg/models"
	"questionforum/pkg/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	cookieName = "forum-session"
	keyToken   = "token"
	keyView    = "view"
	keyFlash   = "flash"
)

func init() {
	gob.Register(FlashMessage{})
}

type Application struct {
	API       *client.Client
	Store     *sessions.CookieStore
	Templates map[string]*template.Template
	Views     *ViewRegistry
	Log       *zap.Logger

	QuestionsPerPage int
	AnswersPerPage   int
}

// Template data structure
type TemplateData struct {
	IsLoggedIn   bool
	User         models.User
	CSRFToken    string
	Data         interface{}
	FlashMessage *FlashMessage
}

type FlashMessage struct {
	Type    string // "success", "error", etc.
	Title   string
	Content string
}

type viewKey struct{}

func viewFrom(r *http.Request) *View {
	v, _ := r.Context().Value(viewKey{}).(*View)
	return v
}

// Routes builds the page router. cmd/web adds CSRF protection around it.
func (app *Application) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(logging.Middleware(app.Log))

	r.HandleFunc("/login", app.Login).Methods("GET", "POST")
	r.HandleFunc("/logout", app.Logout).Methods("GET", "POST")

	pages := r.NewRoute().Subrouter()
	pages.Use(app.requireView)
	pages.HandleFunc("/", app.Home).Methods("GET")
	pages.HandleFunc("/ask", app.Ask).Methods("GET", "POST")
	pages.HandleFunc("/tags/suggest", app.SuggestTags).Methods("GET")
	pages.HandleFunc("/question/{id:[0-9]+}", app.ViewQuestion).Methods("GET")
	pages.HandleFunc("/question/{id:[0-9]+}/answer", app.AnswerQuestion).Methods("POST")
	pages.HandleFunc("/question/{id:[0-9]+}/discard", app.DiscardDraft).Methods("GET", "POST")
	pages.HandleFunc("/question/{id:[0-9]+}/edit", app.EditQuestion).Methods("GET", "POST")
	pages.HandleFunc("/question/{id:[0-9]+}/delete", app.DeleteQuestion).Methods("GET", "POST")
	pages.HandleFunc("/question/{id:[0-9]+}/answers/{aid:[0-9]+}/edit", app.EditAnswer).Methods("POST")
	pages.HandleFunc("/question/{id:[0-9]+}/answers/{aid:[0-9]+}/delete", app.DeleteAnswer).Methods("GET", "POST")
	pages.HandleFunc("/question/{id:[0-9]+}/answers/{aid:[0-9]+}/rate", app.RateAnswer).Methods("POST")
	return r
}

// requireView resolves the browser's View, validating the stored credential
// with the API the first time a browser shows up. Anonymous visitors go to
// the login page.
func (app *Application) requireView(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, _ := app.Store.Get(r, cookieName)
		token, _ := cookie.Values[keyToken].(string)
		if token == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		id, _ := cookie.Values[keyView].(string)
		v, ok := app.Views.Get(id)
		if !ok || v.Session.Token() != token {
			sess := session.New(token, app.Log)
			if err := sess.Init(r.Context(), app.API); err != nil {
				if errors.Is(err, models.ErrUnauthorized) {
					app.endSession(w, r, "Your session has expired. Please log in again.")
					return
				}
				app.Log.Warn("could not validate session", zap.Error(err))
				http.Error(w, "The forum is unavailable right now", http.StatusBadGateway)
				return
			}
			v = app.newView(sess)
			cookie.Values[keyView] = v.ID
			if err := cookie.Save(r, w); err != nil {
				app.Log.Warn("error saving session", zap.Error(err))
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewKey{}, v)))
	})
}

func (app *Application) newView(sess *session.Session) *View {
	return app.Views.Create(sess, app.API, app.QuestionsPerPage, app.AnswersPerPage, app.Log)
}

// endSession forgets the browser's credential and sends it to the login
// page with an explanation.
func (app *Application) endSession(w http.ResponseWriter, r *http.Request, msg string) {
	cookie, _ := app.Store.Get(r, cookieName)
	if id, ok := cookie.Values[keyView].(string); ok {
		app.Views.Drop(id)
	}
	delete(cookie.Values, keyToken)
	delete(cookie.Values, keyView)
	if msg != "" {
		cookie.Values[keyFlash] = FlashMessage{Type: "error", Title: "Signed out", Content: msg}
	}
	if err := cookie.Save(r, w); err != nil {
		app.Log.Warn("error saving session", zap.Error(err))
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Helper function to set a flash message
func (app *Application) setFlashMessage(w http.ResponseWriter, r *http.Request, msgType, title, content string) {
	cookie, err := app.Store.Get(r, cookieName)
	if err != nil {
		app.Log.Warn("error getting session", zap.Error(err))
	}
	cookie.Values[keyFlash] = FlashMessage{
		Type:    msgType,
		Title:   title,
		Content: content,
	}
	if err := cookie.Save(r, w); err != nil {
		app.Log.Warn("error saving session", zap.Error(err))
	}
}

// newTemplateData pops the flash message, so it must run before anything is
// written to w.
func (app *Application) newTemplateData(w http.ResponseWriter, r *http.Request) TemplateData {
	data := TemplateData{CSRFToken: csrf.Token(r)}
	if v := viewFrom(r); v != nil {
		data.User, data.IsLoggedIn = v.Session.CurrentUser()
	}

	cookie, err := app.Store.Get(r, cookieName)
	if err != nil {
		return data
	}
	if flash, ok := cookie.Values[keyFlash].(FlashMessage); ok {
		data.FlashMessage = &flash
		delete(cookie.Values, keyFlash)
		if err := cookie.Save(r, w); err != nil {
			app.Log.Warn("error saving session after clearing flash", zap.Error(err))
		}
	}
	return data
}

func (app *Application) render(w http.ResponseWriter, status int, page string, data TemplateData) {
	t, ok := app.Templates[page]
	if !ok {
		app.Log.Error("unknown template", zap.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		app.Log.Error("error executing template", zap.String("page", page), zap.Error(err))
	}
}

// fail handles an operation error on a page. Authorization failures end the
// session; anything else is flashed and the browser goes back to to.
func (app *Application) fail(w http.ResponseWriter, r *http.Request, err error, to string) {
	if errors.Is(err, models.ErrUnauthorized) {
		app.endSession(w, r, "Your session has expired. Please log in again.")
		return
	}
	app.setFlashMessage(w, r, "error", "Something went wrong", userMessage(err))
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// userMessage turns an error into text fit for a flash message.
func userMessage(err error) string {
	var (
		verr *models.ValidationError
		se   *client.StatusError
	)
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, listsync.ErrBusy):
		return "That action is already in progress."
	case errors.Is(err, listsync.ErrSelfRating):
		return "You cannot rate your own answer."
	case errors.Is(err, listsync.ErrNotAuthenticated):
		return "Please log in to rate answers."
	case errors.Is(err, listsync.ErrInvalidRating):
		return "That is not a valid rating."
	case errors.Is(err, models.ErrForbidden):
		return "You are not allowed to do that."
	case errors.Is(err, models.ErrNotFound):
		return "It no longer exists."
	case errors.As(err, &se) && se.Message != "":
		return se.Message
	}
	return "The forum could not complete the request. Please try again."
}

func intVar(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)[name])
	return n, err == nil && n > 0
}

var funcMap = template.FuncMap{
	"ago": func(t time.Time) string { return humanize.Time(t) },
	"comma": func(n int) string {
		return humanize.Comma(int64(n))
	},
	// rich renders rich text after sanitizing it again.
	"rich": func(s string) template.HTML {
		return template.HTML(models.SanitizeRichText(s))
	},
	"excerpt": func(s string, n int) string {
		text := []rune(models.PlainText(s))
		if len(text) <= n {
			return string(text)
		}
		return string(text[:n]) + "…"
	},
	"add": func(a, b int) int { return a + b },
	"rating": func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) },
}

func (app *Application) LoadTemplates() error {
	if app.Templates == nil {
		app.Templates = make(map[string]*template.Template)
	}

	// Load each template paired with the layout
	templateFiles := []string{
		"home.html",
		"login.html",
		"ask.html",
		"question.html",
		"confirm.html",
		"error.html",
	}

	for _, tf := range templateFiles {
		t, err := template.New("layout.html").Funcs(funcMap).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+tf,
		)
		if err != nil {
			return fmt.Errorf("error parsing template %s: %v", tf, err)
		}
		app.Templates[tf] = t
	}

	app.Log.Debug("templates loaded", zap.Int("count", len(app.Templates)))
	return nil
}
