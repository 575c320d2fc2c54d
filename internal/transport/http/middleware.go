package http

import (
	"context"
	"crypto/subtle"
	"net/http"

	"quizbee/internal/app"
)

const deviceCookie = "qb_device"

type contextKey string

const deviceIDKey contextKey = "deviceID"

// requireAdmin gates a handler on the shared admin secret, accepted from the
// X-Admin-Password header or the admin_password query parameter.
func (a *API) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get("X-Admin-Password")
		if provided == "" {
			provided = r.URL.Query().Get("admin_password")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(a.adminPassword)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// withDevice ensures the participant device cookie, minting one on first
// contact. The device identity is independent of admin auth; it only feeds
// the team binding.
func (a *API) withDevice(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := ""
		if cookie, err := r.Cookie(deviceCookie); err == nil {
			deviceID = cookie.Value
		}
		if deviceID == "" {
			deviceID = app.NewDeviceID()
			http.SetCookie(w, &http.Cookie{
				Name:     deviceCookie,
				Value:    deviceID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next(w, r.WithContext(context.WithValue(r.Context(), deviceIDKey, deviceID)))
	}
}

func deviceID(r *http.Request) string {
	id, _ := r.Context().Value(deviceIDKey).(string)
	return id
}
