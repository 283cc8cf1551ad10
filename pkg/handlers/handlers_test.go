package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"questionforum/pkg/api"
	"questionforum/pkg/client"
	"questionforum/pkg/store"
)

// harness runs the forum API and the web frontend on two local servers.
type harness struct {
	t   *testing.T
	db  *store.DB
	api atomic.Value // http.Handler
	app *Application
	web *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "forum.db"), store.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{t: t, db: db}
	h.useSecret("first-secret")
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.api.Load().(http.Handler).ServeHTTP(w, r)
	}))
	t.Cleanup(apiSrv.Close)

	h.app = &Application{
		API:              client.New(apiSrv.URL + "/api"),
		Store:            sessions.NewCookieStore(securecookie.GenerateRandomKey(32)),
		Views:            NewViewRegistry(time.Hour),
		Log:              zap.NewNop(),
		QuestionsPerPage: 10,
		AnswersPerPage:   2,
	}
	require.NoError(t, h.app.LoadTemplates())
	h.web = httptest.NewServer(h.app.Routes())
	t.Cleanup(h.web.Close)
	return h
}

// useSecret swaps in an API that signs with secret, which invalidates every
// token issued before.
func (h *harness) useSecret(secret string) {
	a := api.NewAPI(h.db, api.Config{Secret: []byte(secret), TokenTTL: time.Hour, AllowRegistration: true}, nil)
	r := mux.NewRouter()
	a.Routes(r.PathPrefix("/api").Subrouter())
	h.api.Store(http.Handler(r))
}

type browser struct {
	t    *testing.T
	base string
	c    *http.Client
}

type page struct {
	Status int
	Path   string
	Body   string
}

func (h *harness) browser() *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(h.t, err)
	return &browser{t: h.t, base: h.web.URL, c: &http.Client{Jar: jar}}
}

func (b *browser) read(resp *http.Response, err error) page {
	b.t.Helper()
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return page{Status: resp.StatusCode, Path: resp.Request.URL.Path, Body: string(body)}
}

func (b *browser) get(path string) page {
	b.t.Helper()
	return b.read(b.c.Get(b.base + path))
}

func (b *browser) post(path string, form url.Values) page {
	b.t.Helper()
	return b.read(b.c.PostForm(b.base+path, form))
}

func (b *browser) register(name string) {
	b.t.Helper()
	p := b.post("/login", url.Values{
		"mode":     {"register"},
		"username": {name},
		"email":    {name + "@example.com"},
		"password": {"correct horse"},
	})
	require.Equal(b.t, http.StatusOK, p.Status)
	require.Equal(b.t, "/", p.Path)
	require.Contains(b.t, p.Body, "Signed in as "+name)
}

func (b *browser) ask(title string, tags string) string {
	b.t.Helper()
	p := b.post("/ask", url.Values{
		"title":       {title},
		"description": {"<p>Some details</p>"},
		"category":    {"Programming"},
		"tag_input":   {tags},
	})
	require.Equal(b.t, http.StatusOK, p.Status)
	require.Contains(b.t, p.Body, title)
	return p.Path
}

func TestAnonymousVisitorsAreSentToLogin(t *testing.T) {
	h := newHarness(t)
	p := h.browser().get("/")
	assert.Equal(t, "/login", p.Path)
	assert.Contains(t, p.Body, "Log in")
}

func TestLoginWithWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.browser().register("alice")

	p := h.browser().post("/login", url.Values{
		"mode":     {"login"},
		"email":    {"alice@example.com"},
		"password": {"wrong password"},
	})
	assert.Equal(t, "/login", p.Path)
	assert.Contains(t, p.Body, "Invalid email or password.")
}

func TestAskAnswerAndRate(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.browser(), h.browser()
	alice.register("alice")
	bob.register("bob")

	path := alice.ask("How do I test handlers?", "go, testing")
	assert.Regexp(t, `^/question/\d+$`, path)

	p := bob.get(path)
	assert.Contains(t, p.Body, "How do I test handlers?")
	assert.Contains(t, p.Body, `<span class="tag">go</span>`)
	assert.Contains(t, p.Body, "No answers yet")
	assert.NotContains(t, p.Body, path+"/edit")

	p = bob.post(path+"/answer", url.Values{"content": {"<p>Use httptest.</p>"}})
	assert.Equal(t, path, p.Path)
	assert.Contains(t, p.Body, "<p>Use httptest.</p>")
	assert.Contains(t, p.Body, "No ratings yet")
	assert.NotContains(t, p.Body, `name="rating"`, "authors cannot rate their own answers")

	p = alice.get(path)
	require.Contains(t, p.Body, `name="rating"`)
	answerID := regexpFind(t, `id="answer-(\d+)"`, p.Body)

	p = alice.post(path+"/answers/"+answerID+"/rate", url.Values{"rating": {"4.5"}})
	assert.Contains(t, p.Body, "4.5 / 5 (1 rating)")
	assert.Contains(t, p.Body, "Your rating: 4.5")

	// The same level again clears the rating.
	p = alice.post(path+"/answers/"+answerID+"/rate", url.Values{"rating": {"4.5"}})
	assert.Contains(t, p.Body, "No ratings yet")
	assert.NotContains(t, p.Body, "Your rating")
}

func TestNewAnswerMovesToLastPage(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.browser(), h.browser()
	alice.register("alice")
	bob.register("bob")
	path := alice.ask("Paging", "")

	for _, content := range []string{"<p>one</p>", "<p>two</p>"} {
		bob.post(path+"/answer", url.Values{"content": {content}})
	}
	p := bob.post(path+"/answer", url.Values{"content": {"<p>three</p>"}})
	assert.Contains(t, p.Body, "Page 2 of 2")
	assert.Contains(t, p.Body, "<p>three</p>")
	assert.NotContains(t, p.Body, "<p>one</p>")
	assert.Contains(t, p.Body, `<span class="disabled" aria-disabled="true">Next &raquo;</span>`)
	assert.Contains(t, p.Body, `href="?page=1"`)

	p = bob.get(path + "?page=1")
	assert.Contains(t, p.Body, "<p>one</p>")
	assert.Contains(t, p.Body, "Page 1 of 2")
	assert.Contains(t, p.Body, `<span class="disabled" aria-disabled="true">&laquo; Previous</span>`)

	p = bob.get(path + "?goto=9")
	assert.Contains(t, p.Body, "Page 1 of 2", "out of range input is ignored")
}

func TestFailedAnswerKeepsDraft(t *testing.T) {
	h := newHarness(t)
	alice := h.browser()
	alice.register("alice")
	path := alice.ask("Drafts", "")

	p := alice.post(path+"/answer", url.Values{"content": {"<p><br></p>"}})
	assert.Contains(t, p.Body, "content cannot be empty")

	p = alice.post(path+"/discard", url.Values{"confirm": {"yes"}})
	assert.NotContains(t, p.Body, "Discard draft")
}

func TestAskValidation(t *testing.T) {
	h := newHarness(t)
	alice := h.browser()
	alice.register("alice")

	p := alice.post("/ask", url.Values{"title": {"No description"}, "description": {"<p><br></p>"}})
	assert.Equal(t, http.StatusUnprocessableEntity, p.Status)
	assert.Contains(t, p.Body, "description cannot be empty")
	assert.Contains(t, p.Body, "category is required")
	assert.Contains(t, p.Body, `value="No description"`)
}

func TestTagPickerRoundTrip(t *testing.T) {
	h := newHarness(t)
	alice := h.browser()
	alice.register("alice")
	alice.ask("Seed tags", "golang")

	p := alice.post("/ask", url.Values{"tags": {"go,web"}, "remove_tag": {"web"}})
	assert.Contains(t, p.Body, `name="tags" value="go"`)

	p = alice.post("/ask", url.Values{"tags": {"go"}, "tag_input": {"GOL"}, "suggest_tags": {"1"}})
	assert.Contains(t, p.Body, `name="add_suggestion" value="golang"`)

	p = alice.get("/tags/suggest?q=gol&selected=go")
	assert.JSONEq(t, `{"suggestions":["golang"]}`, p.Body)
}

func TestOwnerEditsAndDeletesQuestion(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.browser(), h.browser()
	alice.register("alice")
	bob.register("bob")
	path := alice.ask("Original title", "go")

	p := bob.post(path+"/edit", url.Values{"title": {"Hijacked"}})
	assert.Contains(t, p.Body, "You are not allowed to do that.")

	p = alice.get(path + "/edit")
	assert.Contains(t, p.Body, `value="Original title"`)
	p = alice.post(path+"/edit", url.Values{
		"title":       {"Edited title"},
		"description": {"<p>New details</p>"},
		"category":    {"General"},
		"tags":        {"go"},
	})
	assert.Equal(t, path, p.Path)
	assert.Contains(t, p.Body, "Edited title")

	p = alice.get(path + "/delete")
	assert.Contains(t, p.Body, "Are you sure you want to delete this question?")
	p = alice.post(path+"/delete", url.Values{"confirm": {"no"}})
	assert.Equal(t, path, p.Path)

	p = alice.post(path+"/delete", url.Values{"confirm": {"yes"}})
	assert.Equal(t, "/", p.Path)
	assert.Contains(t, p.Body, "Question deleted")
	assert.NotContains(t, p.Body, "Edited title")

	p = bob.get(path)
	assert.Equal(t, http.StatusNotFound, p.Status)
}

func TestOwnerDeletesAnswer(t *testing.T) {
	h := newHarness(t)
	alice := h.browser()
	alice.register("alice")
	path := alice.ask("Self answered", "")
	p := alice.post(path+"/answer", url.Values{"content": {"<p>mine</p>"}})
	answerID := regexpFind(t, `id="answer-(\d+)"`, p.Body)

	p = alice.get(path + "/answers/" + answerID + "/delete")
	assert.Contains(t, p.Body, "Are you sure you want to delete this answer?")
	p = alice.post(path+"/answers/"+answerID+"/delete", url.Values{"confirm": {"yes"}})
	assert.Contains(t, p.Body, "Answer deleted")
	assert.Contains(t, p.Body, "No answers yet")
}

func TestSearchAndCategoryFilter(t *testing.T) {
	h := newHarness(t)
	alice := h.browser()
	alice.register("alice")
	alice.ask("Goroutines leak", "")
	alice.ask("Channels block", "")

	p := alice.get("/?search=gorout&category=")
	assert.Contains(t, p.Body, "Goroutines leak")
	assert.NotContains(t, p.Body, "Channels block")

	// The filter sticks until it is replaced.
	p = alice.get("/")
	assert.NotContains(t, p.Body, "Channels block")

	p = alice.get("/?search=&category=Science")
	assert.Contains(t, p.Body, "No questions found.")
	assert.Contains(t, p.Body, `<option value="Science" selected>`)
}

func TestRejectedTokenEndsSession(t *testing.T) {
	h := newHarness(t)
	alice := h.browser()
	alice.register("alice")
	require.Equal(t, 1, h.app.Views.Len())

	h.useSecret("second-secret")
	p := alice.get("/")
	assert.Equal(t, "/login", p.Path)
	assert.Contains(t, p.Body, "Your session has expired")
	assert.Zero(t, h.app.Views.Len())

	p = alice.get("/ask")
	assert.Equal(t, "/login", p.Path)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	alice := h.browser()
	alice.register("alice")

	p := alice.post("/logout", nil)
	assert.Equal(t, "/login", p.Path)
	assert.Zero(t, h.app.Views.Len())
	assert.Equal(t, "/login", alice.get("/").Path)
}

func regexpFind(t *testing.T, pattern, body string) string {
	t.Helper()
	m := regexp.MustCompile(pattern).FindStringSubmatch(body)
	require.Len(t, m, 2, "no match for %s", pattern)
	return m[1]
}
