package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"questionforum/pkg/client"
	"questionforum/pkg/models"
	"questionforum/pkg/session"
)

type loginPage struct {
	Mode     string // "login" or "register"
	Email    string
	Username string
	Error    string
}

// Login shows the login form and handles both sign-in and registration.
// Either way the API's token is kept in the cookie and a fresh view is
// created for it.
func (app *Application) Login(w http.ResponseWriter, r *http.Request) {
	page := loginPage{Mode: "login"}
	if r.URL.Query().Get("register") != "" {
		page.Mode = "register"
	}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		page.Mode = r.PostForm.Get("mode")
		page.Email = strings.TrimSpace(r.PostForm.Get("email"))
		page.Username = strings.TrimSpace(r.PostForm.Get("username"))
		password := r.PostForm.Get("password")

		var (
			token string
			user  models.User
			err   error
		)
		if page.Mode == "register" {
			token, user, err = app.API.Register(r.Context(), client.Registration{
				Username:  page.Username,
				Firstname: strings.TrimSpace(r.PostForm.Get("firstname")),
				Lastname:  strings.TrimSpace(r.PostForm.Get("lastname")),
				Email:     page.Email,
				Password:  password,
			})
		} else {
			page.Mode = "login"
			token, user, err = app.API.Login(r.Context(), page.Email, password)
		}
		if err == nil {
			app.startSession(w, r, token, user)
			return
		}

		page.Error = loginError(page.Mode, err)
		app.Log.Info("sign-in failed", zap.String("mode", page.Mode), zap.Error(err))
		data := app.newTemplateData(w, r)
		data.Data = page
		app.render(w, http.StatusOK, "login.html", data)
		return
	}

	data := app.newTemplateData(w, r)
	data.Data = page
	app.render(w, http.StatusOK, "login.html", data)
}

func loginError(mode string, err error) string {
	var se *client.StatusError
	switch {
	case mode == "register" && errors.Is(err, models.ErrForbidden):
		return "New user registration is currently disabled."
	case mode == "login" && errors.Is(err, models.ErrUnauthorized):
		return "Invalid email or password."
	case errors.As(err, &se) && se.Message != "":
		return se.Message
	}
	return "The forum is unavailable right now. Please try again."
}

func (app *Application) startSession(w http.ResponseWriter, r *http.Request, token string, user models.User) {
	cookie, _ := app.Store.Get(r, cookieName)
	if old, ok := cookie.Values[keyView].(string); ok {
		app.Views.Drop(old)
	}

	sess := session.New(token, app.Log)
	sess.Authenticate(token, user)
	v := app.newView(sess)

	cookie.Values[keyToken] = token
	cookie.Values[keyView] = v.ID
	cookie.Values[keyFlash] = FlashMessage{
		Type:    "success",
		Title:   "Welcome",
		Content: "Signed in as " + user.DisplayName() + ".",
	}
	if err := cookie.Save(r, w); err != nil {
		app.Log.Error("error saving session", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	app.Log.Info("signed in", zap.Int("user", user.ID), zap.String("view", v.ID))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout tears the session down. Hooks registered on the session drop the
// view with it.
func (app *Application) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, _ := app.Store.Get(r, cookieName)
	if id, ok := cookie.Values[keyView].(string); ok {
		if v, ok := app.Views.Get(id); ok {
			v.Session.Invalidate()
		}
		app.Views.Drop(id)
	}
	delete(cookie.Values, keyToken)
	delete(cookie.Values, keyView)
	if err := cookie.Save(r, w); err != nil {
		app.Log.Warn("error saving session", zap.Error(err))
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
