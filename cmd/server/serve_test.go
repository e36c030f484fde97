// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package main

import (
	"net"
	"path/filepath"
	"strconv"
	"testing"
)

func TestServeBindFailureExitsOne(t *testing.T) {
	held, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer held.Close()
	port := held.Addr().(*net.TCPAddr).Port

	dir := t.TempDir()
	path := writeConfig(t, "faults:\n  crash_log_path: "+filepath.Join(dir, "crashes.log")+"\n")
	t.Setenv("HTTP_HOST", "127.0.0.1")
	t.Setenv("PORT", strconv.Itoa(port))
	t.Setenv("CRASH_LOG_PATH", filepath.Join(dir, "crashes.log"))

	if code := serve(path); code != 1 {
		t.Errorf("serve() with the port in use = %d, want 1", code)
	}
}

func TestServeConfigFailureExitsOne(t *testing.T) {
	if code := serve(filepath.Join(t.TempDir(), "absent.yaml")); code != 1 {
		t.Errorf("serve() with a missing config = %d, want 1", code)
	}
}
