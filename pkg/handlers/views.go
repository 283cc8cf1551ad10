package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"questionforum/pkg/client"
	"questionforum/pkg/listsync"
	"questionforum/pkg/models"
	"questionforum/pkg/session"
)

// View is the state of one signed-in browser: its session, the question
// list it is looking at and the threads it opened.
type View struct {
	ID      string
	Session *session.Session
	API     *client.Client
	Home    *listsync.Engine[models.Question]

	log            *zap.Logger
	answersPerPage int

	mu         sync.Mutex
	threads    map[int]*listsync.Thread
	drafts     map[int]string
	categories []string
	lastUsed   time.Time
}

// Thread returns the controller for question id, creating it on first use.
func (v *View) Thread(id int) *listsync.Thread {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.threads[id]
	if !ok {
		t = listsync.NewThread(id, v.API, v.answersPerPage, v.Session, v.log)
		v.threads[id] = t
	}
	return t
}

func (v *View) dropThread(id int) {
	v.mu.Lock()
	delete(v.threads, id)
	delete(v.drafts, id)
	v.mu.Unlock()
}

// Draft is the unsent answer text kept after a failed submit.
func (v *View) Draft(questionID int) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.drafts[questionID]
}

func (v *View) setDraft(questionID int, content string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if content == "" {
		delete(v.drafts, questionID)
		return
	}
	v.drafts[questionID] = content
}

// Categories returns the category names, fetched once per view.
func (v *View) Categories(ctx context.Context) ([]string, error) {
	v.mu.Lock()
	cached := v.categories
	v.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	list, err := v.API.ListCategories(ctx)
	if err != nil {
		return nil, v.Home.Report(err)
	}
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Name)
	}
	v.mu.Lock()
	v.categories = names
	v.mu.Unlock()
	return names, nil
}

// KnownTags returns every tag the forum has used so far. Tags change as
// questions are asked, so they are not cached.
func (v *View) KnownTags(ctx context.Context) ([]string, error) {
	list, err := v.API.ListTags(ctx)
	if err != nil {
		return nil, v.Home.Report(err)
	}
	names := make([]string, 0, len(list))
	for _, t := range list {
		names = append(names, t.Name)
	}
	return names, nil
}

// ViewRegistry holds the views of all browsers. Views idle for longer than
// the ttl are dropped on the next lookup.
type ViewRegistry struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	views map[string]*View
}

func NewViewRegistry(ttl time.Duration) *ViewRegistry {
	return &ViewRegistry{ttl: ttl, now: time.Now, views: make(map[string]*View)}
}

// Create registers a view for an authenticated session. The view removes
// itself when the session is invalidated.
func (reg *ViewRegistry) Create(sess *session.Session, api *client.Client, questionsPerPage, answersPerPage int, log *zap.Logger) *View {
	id := uuid.NewString()
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("view", id))
	bound := api.WithTokens(sess)
	v := &View{
		ID:      id,
		Session: sess,
		API:     bound,
		Home: listsync.NewEngine[models.Question](listsync.SourceFunc[models.Question](bound.ListQuestions), listsync.Options{
			Name:    "questions",
			PerPage: questionsPerPage,
			Order:   listsync.NewestFirst,
			Session: sess,
			Logger:  log,
		}),
		log:            log,
		answersPerPage: answersPerPage,
		threads:        make(map[int]*listsync.Thread),
		drafts:         make(map[int]string),
		lastUsed:       reg.now(),
	}
	sess.OnInvalidate(func() { reg.Drop(id) })

	reg.mu.Lock()
	reg.views[id] = v
	reg.mu.Unlock()
	return v
}

// Get returns a live view and marks it used.
func (reg *ViewRegistry) Get(id string) (*View, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	now := reg.now()
	reg.sweepLocked(now)
	v, ok := reg.views[id]
	if !ok {
		return nil, false
	}
	v.mu.Lock()
	v.lastUsed = now
	v.mu.Unlock()
	return v, true
}

func (reg *ViewRegistry) Drop(id string) {
	reg.mu.Lock()
	delete(reg.views, id)
	reg.mu.Unlock()
}

func (reg *ViewRegistry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.views)
}

func (reg *ViewRegistry) sweepLocked(now time.Time) {
	for id, v := range reg.views {
		v.mu.Lock()
		idle := now.Sub(v.lastUsed)
		v.mu.Unlock()
		if idle > reg.ttl {
			delete(reg.views, id)
		}
	}
}
