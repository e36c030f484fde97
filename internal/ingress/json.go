// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package ingress

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// JSON stage response messages.
const (
	msgInvalidJSON      = "Invalid JSON"
	msgJSONNotContainer = "JSON body must be an object or array"
)

type rawJSONKey struct{}

// JSONBody returns the validated raw JSON body attached by the JSON stage.
func JSONBody(ctx context.Context) ([]byte, bool) {
	b, ok := ctx.Value(rawJSONKey{}).([]byte)
	return b, ok
}

func isJSON(mt string) bool {
	return mt == "application/json" || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

// JSON rejects oversized or malformed JSON bodies, and well-formed bodies
// whose top-level value is not an object or an array. Valid bodies are
// re-attached to the request and exposed through JSONBody. Empty bodies pass
// untouched.
//
// Well-formedness is checked with encoding/json: goccy/go-json accepts
// trailing data, leading zeros and raw control characters in strings.
func JSON(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) || !isJSON(mediaType(r)) {
				next.ServeHTTP(w, r)
				return
			}

			body, ok := readLimited(w, r, maxBytes)
			if !ok {
				return
			}

			trimmed := bytes.TrimSpace(body)
			if len(trimmed) == 0 {
				r.Body = io.NopCloser(bytes.NewReader(body))
				next.ServeHTTP(w, r)
				return
			}
			if !stdjson.Valid(trimmed) {
				reject(w, r, http.StatusBadRequest, ReasonInvalidJSON, msgInvalidJSON)
				return
			}
			if trimmed[0] != '{' && trimmed[0] != '[' {
				reject(w, r, http.StatusBadRequest, ReasonJSONNotContainer, msgJSONNotContainer)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r = r.WithContext(context.WithValue(r.Context(), rawJSONKey{}, body))
			next.ServeHTTP(w, r)
		})
	}
}

// readLimited reads the whole body under maxBytes, writing the rejection
// response itself when it fails.
func readLimited(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, bool) {
	if r.ContentLength > maxBytes {
		reject(w, r, http.StatusRequestEntityTooLarge, ReasonTooLarge, "Payload Too Large")
		return nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			reject(w, r, http.StatusRequestEntityTooLarge, ReasonTooLarge, "Payload Too Large")
			return nil, false
		}
		reject(w, r, http.StatusBadRequest, ReasonUnreadable, "Bad Request")
		return nil, false
	}
	return body, true
}
