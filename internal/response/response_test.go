// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package response

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	Error(w, http.StatusBadRequest, "Invalid JSON")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if got := w.Body.String(); got != `{"error":"Invalid JSON"}` {
		t.Errorf("body = %s", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestJSONWithMessage(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	JSON(w, http.StatusInternalServerError, ErrorBody{Error: "Internal Server Error", Message: "boom"})

	if got := w.Body.String(); got != `{"error":"Internal Server Error","message":"boom"}` {
		t.Errorf("body = %s", got)
	}
}

func TestJSONMarshalFailure(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]interface{}{"ch": make(chan int)})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	Text(w, http.StatusNotFound, "Not Found")

	if w.Code != http.StatusNotFound || w.Body.String() != "Not Found" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}
