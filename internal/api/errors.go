package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorEnvelope{
		Error: APIError{Code: code, Message: message},
	})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// FullPageRedirect sends the browser to url. XHR callers from the embedded
// frontend get the target as JSON so they can break out of the admin iframe.
func FullPageRedirect(w http.ResponseWriter, r *http.Request, url string) {
	if WantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]string{"redirectUrl": url})
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// WantsJSON reports whether the caller expects JSON rather than a redirect.
func WantsJSON(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
