// Package handler implements the HTTP endpoints of the lingocast API. Each
// constructor takes the narrow interface it needs and returns an
// http.HandlerFunc for the router.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/lingocast/internal/api/middleware"
	"github.com/kiranshivaraju/lingocast/internal/api/response"
)

const maxJSONBody = 1 << 20

// profileFrom returns the authenticated profile or writes a 401.
func profileFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := mw.GetProfileID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing profile", nil)
		return uuid.Nil, false
	}
	return id, true
}

// decodeJSON reads a JSON body into v or writes a 400. Unknown fields are
// rejected so typos surface to the client.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "Invalid JSON body"
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr):
			msg = "Invalid value for field " + typeErr.Field
		case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		default:
			msg = err.Error()
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
		return false
	}
	return true
}

// uuidParam parses a chi URL parameter or writes a 400 with the given code.
func uuidParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, code, "Invalid "+name+" format", nil)
		return uuid.Nil, false
	}
	return id, true
}

// intQuery reads a positive integer query parameter, returning def when it
// is absent and false (after writing a 400) when it is malformed.
func intQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a positive integer", nil)
		return 0, false
	}
	return n, true
}
