package http

import (
	"net/http"
	"os"
	"strings"
)

// CurrentUser — личность вызывающего. В проде её проставляет прокси
// в X-Forwarded-* заголовках, локально берём из окружения.
type CurrentUser struct {
	Email string
	Name  string
}

func userFromRequest(r *http.Request) CurrentUser {
	email := r.Header.Get("X-Forwarded-Email")
	name := r.Header.Get("X-Forwarded-Preferred-Username")

	if email == "" {
		email = os.Getenv("USER_EMAIL")
		if name == "" {
			name = os.Getenv("USER_NAME")
		}
	}
	return CurrentUser{Email: email, Name: name}
}

func (u CurrentUser) EmailPtr() *string {
	if u.Email == "" {
		return nil
	}
	e := u.Email
	return &e
}

func (u CurrentUser) NamePtr() *string {
	if u.Name == "" {
		return nil
	}
	n := u.Name
	return &n
}

func (u CurrentUser) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Email != "" {
		return strings.SplitN(u.Email, "@", 2)[0]
	}
	return "Unknown"
}
