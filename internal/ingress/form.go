// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package ingress

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
)

const formMediaType = "application/x-www-form-urlencoded"

// Form bounds URL-encoded bodies by size and parameter count and parses them
// into r.PostForm and r.Form.
func Form(maxBytes int64, maxParams int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) || mediaType(r) != formMediaType {
				next.ServeHTTP(w, r)
				return
			}

			body, ok := readLimited(w, r, maxBytes)
			if !ok {
				return
			}

			if countParams(body) > maxParams {
				reject(w, r, http.StatusRequestEntityTooLarge, ReasonTooManyParams, "Too Many Parameters")
				return
			}

			post, err := url.ParseQuery(string(body))
			if err != nil {
				reject(w, r, http.StatusBadRequest, ReasonInvalidForm, "Invalid Form Data")
				return
			}

			r.PostForm = post
			r.Form = mergeForm(post, r.URL.Query())
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// countParams counts '&'-separated fields, ignoring empty ones.
func countParams(body []byte) int {
	n := 0
	for _, field := range bytes.Split(body, []byte{'&'}) {
		if len(field) > 0 {
			n++
		}
	}
	return n
}

// mergeForm follows http.Request.ParseForm: body values precede query values.
func mergeForm(post, query url.Values) url.Values {
	form := make(url.Values, len(post)+len(query))
	for k, vs := range post {
		form[k] = append(form[k], vs...)
	}
	for k, vs := range query {
		form[k] = append(form[k], vs...)
	}
	return form
}
