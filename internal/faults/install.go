// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package faults

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
)

// ErrAlreadyInstalled is returned by Install when an interceptor is already registered.
var ErrAlreadyInstalled = errors.New("fault interceptor already installed")

var (
	installMu sync.Mutex
	installed *Interceptor
)

// Install registers i as the process-wide interceptor. It is the only place
// that touches global runtime fault settings:
//
//   - tracebacks include every goroutine
//   - the runtime's own fatal error output (faults no recover can reach, such
//     as concurrent map writes) is appended to crashLogPath
//
// A second call returns ErrAlreadyInstalled. Failure to open crashLogPath is
// returned but leaves i installed.
func Install(i *Interceptor, crashLogPath string) error {
	installMu.Lock()
	defer installMu.Unlock()

	if installed != nil {
		return ErrAlreadyInstalled
	}
	installed = i

	debug.SetTraceback("all")

	if crashLogPath == "" {
		return nil
	}
	f, err := os.OpenFile(crashLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open crash output %s: %w", crashLogPath, err)
	}
	// SetCrashOutput keeps its own duplicate of the descriptor.
	defer f.Close()
	if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
		return fmt.Errorf("redirect runtime crash output: %w", err)
	}
	return nil
}
