package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderUserID    = "X-User-Id"
	GuestCookieName = "guest_id"
	guestQueryParam = "guest"
)

// IdentityFrom resolves the caller. The auth header wins over the guest
// cookie, which wins over the guest query parameter.
func IdentityFrom(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderUserID)); v != "" {
		return v
	}
	if c, err := r.Cookie(GuestCookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return "guest:" + v
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get(guestQueryParam)); v != "" {
		return "guest:" + v
	}
	return ""
}

// issueGuest sets a fresh guest cookie on the handshake response.
func issueGuest(w http.ResponseWriter) string {
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     GuestCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
	})
	return "guest:" + id
}
