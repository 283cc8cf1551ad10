package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"questionforum/pkg/listsync"
	"questionforum/pkg/models"
)

type homePage struct {
	List       listsync.Snapshot[models.Question]
	Categories []listsync.CategoryOption
}

// Home renders the question list. page and goto navigate, search and
// category replace the filter, and a bare visit refetches the current page.
func (app *Application) Home(w http.ResponseWriter, r *http.Request) {
	v := viewFrom(r)
	ctx := r.Context()
	query := r.URL.Query()

	categories, err := v.Categories(ctx)
	if errors.Is(err, models.ErrUnauthorized) {
		app.endSession(w, r, "Your session has expired. Please log in again.")
		return
	}
	if err != nil {
		app.Log.Warn("could not load categories", zap.Error(err))
	}

	switch {
	case query.Has("search") || query.Has("category"):
		err = v.Home.SetFilter(ctx, listsync.FilterState{
			Search:   query.Get("search"),
			Category: query.Get("category"),
		})
	case query.Has("page") || query.Has("goto"):
		err = navigate(r, v.Home, !v.Home.Snapshot().Loaded)
	default:
		err = v.Home.Refresh(ctx)
	}
	if errors.Is(err, models.ErrUnauthorized) {
		app.endSession(w, r, "Your session has expired. Please log in again.")
		return
	}

	list := v.Home.Snapshot()
	data := app.newTemplateData(w, r)
	data.Data = homePage{
		List:       list,
		Categories: listsync.CategoryOptions(categories, list.Filter.Category),
	}
	app.render(w, http.StatusOK, "home.html", data)
}

// navigate applies the page or goto parameter to a list. Rejected input is
// ignored and the list stays where it was. An unloaded list is fetched first
// so the page count is known.
func navigate[T listsync.Item](r *http.Request, e *listsync.Engine[T], load bool) error {
	ctx := r.Context()
	if load {
		if err := e.Refresh(ctx); err != nil {
			return err
		}
	}

	query := r.URL.Query()
	var err error
	if query.Has("goto") {
		err = e.GoToInput(ctx, query.Get("goto"))
	} else {
		n, convErr := strconv.Atoi(query.Get("page"))
		if convErr != nil {
			return nil
		}
		err = e.GoToPage(ctx, n)
	}
	switch {
	case errors.Is(err, listsync.ErrPageOutOfRange),
		errors.Is(err, listsync.ErrInvalidPage),
		errors.Is(err, listsync.ErrStale):
		return nil
	}
	return err
}

type questionForm struct {
	Heading     string
	Action      string
	Submit      string
	Cancel      string
	Title       string
	Description string
	Category    string
	Categories  []listsync.CategoryOption
	Tags        []string
	TagInput    string
	Suggestions []string
	TagsFull    bool
	Errors      *models.ValidationError
	Error       string
}

// TagList is the hidden field carrying the selected tags between posts.
func (f questionForm) TagList() string { return strings.Join(f.Tags, ",") }

func (f questionForm) FieldError(name string) string { return f.Errors.Field(name) }

// readQuestionForm applies a posted ask or edit form to f. It reports
// whether the user pressed submit; adding or removing a tag only re-renders.
func readQuestionForm(r *http.Request, f *questionForm) (models.QuestionDraft, bool) {
	f.Title = r.PostForm.Get("title")
	f.Description = r.PostForm.Get("description")
	f.Category = r.PostForm.Get("category")
	f.TagInput = r.PostForm.Get("tag_input")

	picker := listsync.NewTagPicker(models.SplitTags(r.PostForm.Get("tags")))
	submit := false
	switch {
	case r.PostForm.Get("remove_tag") != "":
		picker.Remove(r.PostForm.Get("remove_tag"))
	case r.PostForm.Get("add_suggestion") != "":
		picker.Add(r.PostForm.Get("add_suggestion"))
		f.TagInput = ""
	case r.PostForm.Has("suggest_tags"):
		// keep the input so its suggestions are shown
	default:
		// Pending input counts as typed tags followed by a comma.
		for _, t := range models.SplitTags(f.TagInput) {
			picker.Add(t)
		}
		f.TagInput = ""
		submit = !r.PostForm.Has("add_tag")
	}
	f.Tags = picker.Tags()
	f.TagsFull = picker.Full()

	return models.QuestionDraft{
		Title:       f.Title,
		Description: f.Description,
		Category:    f.Category,
		Tags:        f.Tags,
	}, submit
}

func (app *Application) renderQuestionForm(w http.ResponseWriter, r *http.Request, status int, v *View, f questionForm) {
	ctx := r.Context()
	categories, err := v.Categories(ctx)
	if err != nil {
		app.Log.Warn("could not load categories", zap.Error(err))
	}
	f.Categories = listsync.CategoryOptions(categories, f.Category)[1:]
	if f.TagInput != "" {
		known, err := v.KnownTags(ctx)
		if err != nil {
			app.Log.Warn("could not load tags", zap.Error(err))
		}
		f.Suggestions = listsync.Suggest(f.TagInput, known, f.Tags)
	}

	data := app.newTemplateData(w, r)
	data.Data = f
	app.render(w, status, "ask.html", data)
}

// formError sorts an operation error into inline form feedback. It reports
// false when the error ends the session instead.
func (app *Application) formError(w http.ResponseWriter, r *http.Request, err error, f *questionForm) bool {
	if errors.Is(err, models.ErrUnauthorized) {
		app.endSession(w, r, "Your session has expired. Please log in again.")
		return false
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		f.Errors = verr
		return true
	}
	f.Error = userMessage(err)
	return true
}

// Ask shows the ask form and posts new questions.
func (app *Application) Ask(w http.ResponseWriter, r *http.Request) {
	v := viewFrom(r)
	f := questionForm{Heading: "Ask a Question", Action: "/ask", Submit: "Post Question", Cancel: "/"}
	if r.Method != http.MethodPost {
		app.renderQuestionForm(w, r, http.StatusOK, v, f)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	d, submit := readQuestionForm(r, &f)
	if !submit {
		app.renderQuestionForm(w, r, http.StatusOK, v, f)
		return
	}
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		app.formError(w, r, err, &f)
		app.renderQuestionForm(w, r, http.StatusUnprocessableEntity, v, f)
		return
	}

	q, err := v.API.CreateQuestion(r.Context(), d)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			v.Session.Invalidate()
		}
		if app.formError(w, r, err, &f) {
			app.renderQuestionForm(w, r, http.StatusOK, v, f)
		}
		return
	}

	app.Log.Info("question posted", zap.Int("question", q.ID))
	app.setFlashMessage(w, r, "success", "Question posted", "Your question has been posted.")
	http.Redirect(w, r, "/question/"+strconv.Itoa(q.ID), http.StatusSeeOther)
}

// SuggestTags answers the tag input's lookups with up to five known tags.
func (app *Application) SuggestTags(w http.ResponseWriter, r *http.Request) {
	v := viewFrom(r)
	known, err := v.KnownTags(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, models.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	query := r.URL.Query()
	suggestions := listsync.Suggest(query.Get("q"), known, models.SplitTags(query.Get("selected")))
	if suggestions == nil {
		suggestions = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]string{"suggestions": suggestions}); err != nil {
		app.Log.Warn("error encoding suggestions", zap.Error(err))
	}
}
