package listsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"questionforum/pkg/models"
	"questionforum/pkg/session"
)

var ErrDeclined = errors.New("listsync: confirmation declined")

// Prompts passed to Confirm before destructive operations.
const (
	DeleteQuestionPrompt = "Are you sure you want to delete this question?"
	DeleteAnswerPrompt   = "Are you sure you want to delete this answer?"
	DiscardDraftPrompt   = "Discard your unsent answer?"
)

// Confirm asks the user a yes/no question and blocks until answered.
type Confirm func(prompt string) bool

// ThreadAPI is the part of the forum API a question thread talks to.
type ThreadAPI interface {
	GetQuestion(ctx context.Context, id int) (models.Question, error)
	UpdateQuestion(ctx context.Context, id int, d models.QuestionDraft) (models.Question, error)
	DeleteQuestion(ctx context.Context, id int) error

	ListAnswers(ctx context.Context, questionID int, q models.ListQuery) (models.Page[models.Answer], error)
	CreateAnswer(ctx context.Context, d models.AnswerDraft) (models.Answer, error)
	UpdateAnswer(ctx context.Context, id int, d models.AnswerDraft) (models.Answer, error)
	DeleteAnswer(ctx context.Context, id int) error
	RateAnswer(ctx context.Context, answerID int, rating float64) (models.RatingSummary, error)
}

// Thread is a question with one page of its answers.
type Thread struct {
	id      int
	api     ThreadAPI
	sess    session.Context
	log     *zap.Logger
	answers *Engine[models.Answer]

	mu       sync.Mutex
	question models.Question
	loaded   bool
	deleted  bool
}

// NewThread builds the controller for question id. Answers are kept oldest
// first so that a new answer lands on the last page.
func NewThread(id int, api ThreadAPI, perPage int, sess session.Context, log *zap.Logger) *Thread {
	if log == nil {
		log = zap.NewNop()
	}
	if sess == nil {
		sess = session.Anonymous{}
	}
	source := SourceFunc[models.Answer](func(ctx context.Context, q models.ListQuery) (models.Page[models.Answer], error) {
		return api.ListAnswers(ctx, id, q)
	})
	return &Thread{
		id:   id,
		api:  api,
		sess: sess,
		log:  log.With(zap.Int("question", id)),
		answers: NewEngine[models.Answer](source, Options{
			Name:    fmt.Sprintf("answers/%d", id),
			PerPage: perPage,
			Order:   OldestFirst,
			Session: sess,
			Logger:  log,
		}),
	}
}

func (t *Thread) ID() int { return t.id }

// Answers exposes the answer list for paging and rendering.
func (t *Thread) Answers() *Engine[models.Answer] { return t.answers }

func (t *Thread) Question() (models.Question, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.question, t.loaded
}

// Deleted reports whether the question was deleted through this thread.
func (t *Thread) Deleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleted
}

// IsOwner reports whether the signed-in user wrote the question.
func (t *Thread) IsOwner() bool {
	q, ok := t.Question()
	if !ok {
		return false
	}
	return isAuthor(t.sess, q.AuthorID)
}

// Load fetches the question and the current answer page together. Neither
// is applied unless both succeed.
func (t *Thread) Load(ctx context.Context) error {
	q := t.answers.query()
	seq := t.answers.issue()

	var (
		question models.Question
		page     models.Page[models.Answer]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		question, err = t.api.GetQuestion(gctx, t.id)
		return err
	})
	g.Go(func() error {
		var err error
		page, err = t.api.ListAnswers(gctx, t.id, q)
		return err
	})
	if err := g.Wait(); err != nil {
		_, err = t.answers.complete(seq, q, models.Page[models.Answer]{}, err)
		return err
	}

	clamped, err := t.answers.complete(seq, q, page, nil)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.question = question
	t.loaded = true
	t.mu.Unlock()
	if clamped {
		return t.answers.Refresh(ctx)
	}
	return nil
}

// UpdateQuestion saves the owner's edit and applies the server's copy.
func (t *Thread) UpdateQuestion(ctx context.Context, d models.QuestionDraft) (models.Question, error) {
	if _, ok := t.Question(); !ok {
		return models.Question{}, ErrNotLoaded
	}
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return models.Question{}, err
	}
	done, err := t.answers.begin("question:update")
	if err != nil {
		return models.Question{}, err
	}
	defer done()

	updated, err := t.api.UpdateQuestion(ctx, t.id, d)
	if err != nil {
		return models.Question{}, t.answers.Report(err)
	}
	t.mu.Lock()
	t.question.ApplyEdit(updated)
	q := t.question
	t.mu.Unlock()
	return q, nil
}

// DeleteQuestion removes the question after confirmation. Declining leaves
// everything as it was.
func (t *Thread) DeleteQuestion(ctx context.Context, confirm Confirm) error {
	if confirm == nil || !confirm(DeleteQuestionPrompt) {
		return ErrDeclined
	}
	done, err := t.answers.begin("question:delete")
	if err != nil {
		return err
	}
	defer done()

	if err := t.api.DeleteQuestion(ctx, t.id); err != nil {
		return t.answers.Report(err)
	}
	t.mu.Lock()
	t.deleted = true
	t.mu.Unlock()
	t.log.Info("question deleted")
	return nil
}

// CreateAnswer posts a new answer. The server's canonical copy is counted
// and the thread moves to the last page, fetching it when the page moved.
func (t *Thread) CreateAnswer(ctx context.Context, content string) (models.Answer, error) {
	d := models.AnswerDraft{QuestionID: t.id, Content: content}.Normalize()
	if err := d.Validate(); err != nil {
		return models.Answer{}, err
	}
	done, err := t.answers.begin("answer:create")
	if err != nil {
		return models.Answer{}, err
	}
	defer done()

	a, err := t.api.CreateAnswer(ctx, d)
	if err != nil {
		return models.Answer{}, t.answers.Report(err)
	}
	t.afterMutation(t.answers.ApplyCreated(ctx, a))
	return a, nil
}

// UpdateAnswer saves an edit and replaces the answer's content in place.
func (t *Thread) UpdateAnswer(ctx context.Context, answerID int, content string) (models.Answer, error) {
	d := models.AnswerDraft{QuestionID: t.id, Content: content}.Normalize()
	if err := d.Validate(); err != nil {
		return models.Answer{}, err
	}
	done, err := t.answers.begin(answerOp("update", answerID))
	if err != nil {
		return models.Answer{}, err
	}
	defer done()

	updated, err := t.api.UpdateAnswer(ctx, answerID, d)
	if err != nil {
		return models.Answer{}, t.answers.Report(err)
	}
	t.answers.ApplyUpdated(answerID, func(a *models.Answer) { a.ApplyEdit(updated) })
	return updated, nil
}

// DeleteAnswer removes an answer after confirmation.
func (t *Thread) DeleteAnswer(ctx context.Context, answerID int, confirm Confirm) error {
	if confirm == nil || !confirm(DeleteAnswerPrompt) {
		return ErrDeclined
	}
	done, err := t.answers.begin(answerOp("delete", answerID))
	if err != nil {
		return err
	}
	defer done()

	if err := t.api.DeleteAnswer(ctx, answerID); err != nil {
		return t.answers.Report(err)
	}
	t.afterMutation(t.answers.ApplyDeleted(ctx, answerID))
	return nil
}

// afterMutation logs a failed fetch of the page a mutation moved to. The
// mutation itself succeeded and the list already surfaces the error.
func (t *Thread) afterMutation(err error) {
	if err != nil {
		t.log.Warn("fetch after mutation failed", zap.Error(err))
	}
}

func answerOp(op string, id int) string {
	return fmt.Sprintf("answer:%s:%d", op, id)
}

func isAuthor(sess session.Context, authorID int) bool {
	if sess == nil || !sess.IsAuthenticated() {
		return false
	}
	u, ok := sess.CurrentUser()
	return ok && u.ID == authorID
}
