// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
)

// Vars is the ctx.vars attribute bag: a set of string key/value pairs
// supplied to a loader at invocation time. It is layered through koanf
// so that CLI
// --var overrides, MAKEPY_*-prefixed environment variables, and
// programmatic defaults compose with clear precedence.
type Vars struct {
	k *koanf.Koanf
}

// NewVars returns an empty attribute bag seeded with MAKEPY_-prefixed
// environment variables (lower-cased, prefix stripped).
func NewVars() *Vars {
	k := koanf.New(".")
	_ = k.Load(env.Provider(".", env.Opt{
		Prefix: "MAKEPY_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "MAKEPY_")), value
		},
	}), nil)
	return &Vars{k: k}
}

// Set assigns a single key, overriding any prior value. Used both for
// --var KEY=VALUE CLI flags and for programmatic defaults loaded via
// confmap.
func (v *Vars) Set(key, value string) {
	_ = v.k.Load(confmap.Provider(map[string]any{key: value}, "."), nil)
}

// Get returns the value for key, or "" if unset.
func (v *Vars) Get(key string) string {
	return v.k.String(key)
}

// Has reports whether key has been set.
func (v *Vars) Has(key string) bool {
	return v.k.Exists(key)
}

// All returns a snapshot of every key/value pair currently set.
func (v *Vars) All() map[string]string {
	out := make(map[string]string)
	for k, val := range v.k.All() {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

// ParseVarFlag splits a "KEY=VALUE" CLI argument as accepted by --var.
// It returns ok=false if arg does not contain '='.
func ParseVarFlag(arg string) (key, value string, ok bool) {
	return strings.Cut(arg, "=")
}
