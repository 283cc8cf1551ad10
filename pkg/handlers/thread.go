package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"questionforum/pkg/listsync"
	"questionforum/pkg/models"
)

type answerView struct {
	models.Answer
	Rating  listsync.RatingControl
	IsOwner bool
	Editing bool
}

type questionPage struct {
	Question   models.Question
	IsOwner    bool
	Answers    []answerView
	Page       listsync.PageState
	TotalCount int
	Err        error
	Draft      string
}

type confirmPage struct {
	Prompt string
	Action string
	Cancel string
	Submit string
}

func questionPath(id int) string { return "/question/" + strconv.Itoa(id) }

// confirmed is the Confirm answer carried by a posted confirmation page.
func confirmed(r *http.Request) listsync.Confirm {
	return func(string) bool { return r.PostFormValue("confirm") == "yes" }
}

func (app *Application) confirm(w http.ResponseWriter, r *http.Request, c confirmPage) {
	data := app.newTemplateData(w, r)
	data.Data = c
	app.render(w, http.StatusOK, "confirm.html", data)
}

func (app *Application) notFound(w http.ResponseWriter, r *http.Request, msg string) {
	data := app.newTemplateData(w, r)
	data.Data = msg
	app.render(w, http.StatusNotFound, "error.html", data)
}

// loadedThread returns the thread named by the route, loading it on first
// use. It writes the response itself and returns false when the thread
// cannot be shown.
func (app *Application) loadedThread(w http.ResponseWriter, r *http.Request) (*View, *listsync.Thread, bool) {
	v := viewFrom(r)
	id, ok := intVar(r, "id")
	if !ok {
		app.notFound(w, r, "That question does not exist.")
		return nil, nil, false
	}
	t := v.Thread(id)
	if _, loaded := t.Question(); loaded {
		return v, t, true
	}
	if err := loadThread(r.Context(), t); err != nil {
		app.threadError(w, r, v, id, err)
		return nil, nil, false
	}
	return v, t, true
}

// loadThread loads t and reports an error whenever the question is still
// missing afterwards. A load that lost to a concurrent one is retried once
// if that one did not bring the question in either.
func loadThread(ctx context.Context, t *listsync.Thread) error {
	err := t.Load(ctx)
	if errors.Is(err, listsync.ErrStale) {
		if _, ok := t.Question(); !ok {
			err = t.Load(ctx)
		}
	}
	if _, ok := t.Question(); !ok && (err == nil || errors.Is(err, listsync.ErrStale)) {
		return listsync.ErrNotLoaded
	}
	if errors.Is(err, listsync.ErrStale) {
		return nil
	}
	return err
}

func (app *Application) threadError(w http.ResponseWriter, r *http.Request, v *View, id int, err error) {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		app.endSession(w, r, "Your session has expired. Please log in again.")
	case errors.Is(err, models.ErrNotFound):
		v.dropThread(id)
		app.notFound(w, r, "That question does not exist or was deleted.")
	default:
		app.Log.Warn("could not load question", zap.Int("question", id), zap.Error(err))
		data := app.newTemplateData(w, r)
		data.Data = userMessage(err)
		app.render(w, http.StatusBadGateway, "error.html", data)
	}
}

// ViewQuestion shows a question with one page of its answers.
func (app *Application) ViewQuestion(w http.ResponseWriter, r *http.Request) {
	v := viewFrom(r)
	id, ok := intVar(r, "id")
	if !ok {
		app.notFound(w, r, "That question does not exist.")
		return
	}
	t := v.Thread(id)
	query := r.URL.Query()

	_, loaded := t.Question()
	nav := query.Has("page") || query.Has("goto")
	if !loaded || !nav {
		if err := loadThread(r.Context(), t); err != nil {
			if _, ok := t.Question(); !ok || errors.Is(err, models.ErrUnauthorized) || errors.Is(err, models.ErrNotFound) {
				app.threadError(w, r, v, id, err)
				return
			}
		}
	}
	if nav {
		if err := navigate(r, t.Answers(), false); errors.Is(err, models.ErrUnauthorized) {
			app.endSession(w, r, "Your session has expired. Please log in again.")
			return
		}
	}

	q, _ := t.Question()
	list := t.Answers().Snapshot()
	editID, _ := strconv.Atoi(query.Get("edit"))

	page := questionPage{
		Question:   q,
		IsOwner:    t.IsOwner(),
		Page:       list.Page,
		TotalCount: list.TotalCount,
		Err:        list.Err,
		Draft:      v.Draft(id),
	}
	for _, a := range list.Items {
		rc := t.RatingControl(a)
		page.Answers = append(page.Answers, answerView{
			Answer:  a,
			Rating:  rc,
			IsOwner: rc.Own,
			Editing: rc.Own && a.ID == editID,
		})
	}

	data := app.newTemplateData(w, r)
	data.Data = page
	app.render(w, http.StatusOK, "question.html", data)
}

// AnswerQuestion posts an answer. A failed post keeps the text as the
// thread's draft.
func (app *Application) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	v, t, ok := app.loadedThread(w, r)
	if !ok {
		return
	}
	content := r.PostFormValue("content")
	to := questionPath(t.ID())

	a, err := t.CreateAnswer(r.Context(), content)
	if err != nil {
		v.setDraft(t.ID(), content)
		app.fail(w, r, err, to+"#answer-form")
		return
	}
	v.setDraft(t.ID(), "")
	app.Log.Info("answer posted", zap.Int("question", t.ID()), zap.Int("answer", a.ID))
	app.setFlashMessage(w, r, "success", "Answer posted", "Your answer has been posted.")
	http.Redirect(w, r, to+"#answer-"+strconv.Itoa(a.ID), http.StatusSeeOther)
}

// DiscardDraft throws the unsent answer away after confirmation.
func (app *Application) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	v := viewFrom(r)
	id, ok := intVar(r, "id")
	if !ok {
		app.notFound(w, r, "That question does not exist.")
		return
	}
	to := questionPath(id)
	if r.Method != http.MethodPost {
		app.confirm(w, r, confirmPage{
			Prompt: listsync.DiscardDraftPrompt,
			Action: to + "/discard",
			Cancel: to,
			Submit: "Discard",
		})
		return
	}
	if confirmed(r)(listsync.DiscardDraftPrompt) {
		v.setDraft(id, "")
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// EditQuestion lets the owner change title, description, category and tags.
func (app *Application) EditQuestion(w http.ResponseWriter, r *http.Request) {
	v, t, ok := app.loadedThread(w, r)
	if !ok {
		return
	}
	to := questionPath(t.ID())
	if !t.IsOwner() {
		app.fail(w, r, models.ErrForbidden, to)
		return
	}

	q, _ := t.Question()
	f := questionForm{
		Heading:     "Edit Question",
		Action:      to + "/edit",
		Submit:      "Save Changes",
		Cancel:      to,
		Title:       q.Title,
		Description: q.Description,
		Category:    q.Category,
		Tags:        q.Tags,
		TagsFull:    len(q.Tags) >= models.MaxTags,
	}
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
	updated, err := t.UpdateQuestion(r.Context(), d)
	if err != nil {
		if app.formError(w, r, err, &f) {
			status := http.StatusOK
			if f.Errors != nil {
				status = http.StatusUnprocessableEntity
			}
			app.renderQuestionForm(w, r, status, v, f)
		}
		return
	}

	v.Home.ApplyUpdated(updated.ID, func(q *models.Question) { q.ApplyEdit(updated) })
	app.setFlashMessage(w, r, "success", "Question updated", "Your changes have been saved.")
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// DeleteQuestion asks for confirmation, deletes, and goes home.
func (app *Application) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	v, t, ok := app.loadedThread(w, r)
	if !ok {
		return
	}
	to := questionPath(t.ID())
	if !t.IsOwner() {
		app.fail(w, r, models.ErrForbidden, to)
		return
	}
	if r.Method != http.MethodPost {
		app.confirm(w, r, confirmPage{
			Prompt: listsync.DeleteQuestionPrompt,
			Action: to + "/delete",
			Cancel: to,
			Submit: "Delete",
		})
		return
	}

	err := t.DeleteQuestion(r.Context(), confirmed(r))
	switch {
	case errors.Is(err, listsync.ErrDeclined):
		http.Redirect(w, r, to, http.StatusSeeOther)
		return
	case err != nil:
		app.fail(w, r, err, to)
		return
	}

	if err := v.Home.ApplyDeleted(r.Context(), t.ID()); err != nil {
		app.Log.Warn("could not refresh questions after delete", zap.Error(err))
	}
	v.dropThread(t.ID())
	app.Log.Info("question deleted", zap.Int("question", t.ID()))
	app.setFlashMessage(w, r, "success", "Question deleted", "The question and its answers have been deleted.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// EditAnswer saves the owner's edit of an answer on the current page.
func (app *Application) EditAnswer(w http.ResponseWriter, r *http.Request) {
	_, t, ok := app.loadedThread(w, r)
	if !ok {
		return
	}
	aid, _ := intVar(r, "aid")
	to := questionPath(t.ID())

	if _, err := t.UpdateAnswer(r.Context(), aid, r.PostFormValue("content")); err != nil {
		app.fail(w, r, err, to+"?edit="+strconv.Itoa(aid)+"#answer-"+strconv.Itoa(aid))
		return
	}
	app.setFlashMessage(w, r, "success", "Answer updated", "Your changes have been saved.")
	http.Redirect(w, r, to+"#answer-"+strconv.Itoa(aid), http.StatusSeeOther)
}

// DeleteAnswer asks for confirmation and deletes an answer.
func (app *Application) DeleteAnswer(w http.ResponseWriter, r *http.Request) {
	_, t, ok := app.loadedThread(w, r)
	if !ok {
		return
	}
	aid, _ := intVar(r, "aid")
	to := questionPath(t.ID())
	if r.Method != http.MethodPost {
		app.confirm(w, r, confirmPage{
			Prompt: listsync.DeleteAnswerPrompt,
			Action: to + "/answers/" + strconv.Itoa(aid) + "/delete",
			Cancel: to,
			Submit: "Delete",
		})
		return
	}

	err := t.DeleteAnswer(r.Context(), aid, confirmed(r))
	switch {
	case errors.Is(err, listsync.ErrDeclined):
	case err != nil:
		app.fail(w, r, err, to)
		return
	default:
		app.setFlashMessage(w, r, "success", "Answer deleted", "The answer has been deleted.")
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// RateAnswer applies a click on one rating level.
func (app *Application) RateAnswer(w http.ResponseWriter, r *http.Request) {
	_, t, ok := app.loadedThread(w, r)
	if !ok {
		return
	}
	aid, _ := intVar(r, "aid")
	to := questionPath(t.ID()) + "#answer-" + strconv.Itoa(aid)

	level, err := strconv.ParseFloat(r.PostFormValue("rating"), 64)
	if err != nil {
		app.fail(w, r, listsync.ErrInvalidRating, to)
		return
	}
	if _, err := t.Rate(r.Context(), aid, level); err != nil {
		app.fail(w, r, err, to)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}
