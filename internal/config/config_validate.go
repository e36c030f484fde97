// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tomtom215/warden/internal/validation"
)

// Validate checks struct constraints and the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	return c.validateRoutes()
}

// validateRoutes rejects page names that would escape the static directory.
func (c *Config) validateRoutes() error {
	for name, page := range map[string]string{
		"routes.main_page": c.Routes.MainPage,
		"routes.pair_page": c.Routes.PairPage,
	} {
		if filepath.IsAbs(page) || strings.Contains(filepath.ToSlash(filepath.Clean(page)), "..") {
			return fmt.Errorf("%s must be a relative path inside routes.static_dir, got %q", name, page)
		}
	}
	return nil
}
