// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// ErrNotFound marks a collaborator lookup that found no resource, e.g. a
// record id with no stored entity behind it.
var ErrNotFound = errors.New("resource not found")

// RespondError maps collaborator errors to RFC7807 responses. Authentication
// and authorization failures carry their own response mapping in their
// handlers; this covers resource-store errors reaching a gate or handler.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
