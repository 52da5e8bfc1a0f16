// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"plugin"
)

// RulesFunc is the symbol every loader plugin must export: a function
// named Rules that registers its rules against the shared Context.
type RulesFunc func(ctx *Context) error

// LoadPlugin opens the loader plugin at path (built with `go build
// -buildmode=plugin`) and invokes its exported Rules function against
// ctx. It only handles registering whatever rules the plugin adds;
// the rule-pattern DSL that would normally populate such a plugin is
// left entirely to whatever host language builds the .so.
func LoadPlugin(ctx *Context, path string) error {
	p, err := plugin.Open(path)
	if err != nil {
		return newBuildError(ErrLoad, "opening loader plugin %q: %v", path, err)
	}

	sym, err := p.Lookup("Rules")
	if err != nil {
		return newBuildError(ErrLoad, "loader plugin %q does not export Rules: %v", path, err)
	}

	switch fn := sym.(type) {
	case func(*Context) error:
		if err := fn(ctx); err != nil {
			return newBuildError(ErrLoad, "loader plugin %q: %v", path, err)
		}
		return nil
	case func(*Context):
		fn(ctx)
		return nil
	default:
		return newBuildError(ErrLoad, "loader plugin %q exports Rules with an unsupported signature %T", path, sym)
	}
}
