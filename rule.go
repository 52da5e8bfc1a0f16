// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"
)

// Rule is an immutable-after-registration build recipe. Only Priority is
// mutated after registration, by the scheduler's critical-path
// propagation.
type Rule struct {
	Targets          []string // nonempty, canonical
	Deps             []string // canonical
	OrderOnlyDeps    []string // canonical; gate completion only, never staleness
	Cwd              string   // canonical working directory for Cmds
	Cmds             [][]string
	DFile            string         // canonical sidecar path, "" if unset
	IncludeScan      bool           // scan stdout for MSVC-style include notes
	StdoutFilter     *regexp.Regexp // nil if unset
	StdoutFilterText string         // source text; excluded from the signature hash
	Latency          float64

	mu       sync.Mutex
	Priority float64 // derived: max critical-path latency to any requested goal
}

func (r *Rule) setPriority(p float64) {
	r.mu.Lock()
	if p > r.Priority {
		r.Priority = p
	}
	r.mu.Unlock()
}

func (r *Rule) getPriority() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Priority
}

// RuleSpec is the input to AddRule: targets/deps/cmds are required,
// everything else is optional and defaults to order_only_deps=[],
// include_scan=false, stdout_filter=None, latency=1.
type RuleSpec struct {
	Targets       []string
	Deps          []string
	Cmds          [][]string // a single command is [][]string{{...}}
	Cwd           string     // resolved against ctx.RootDir; defaults to RootDir
	DFile         string
	OrderOnlyDeps []string
	IncludeScan   bool
	StdoutFilter  string // regex source; "" means unset
	Latency       float64
}

// Context owns the rule registry and the shared ctx.vars attribute bag.
// It is consumed by whatever loader calls AddRule.
type Context struct {
	mu       sync.Mutex
	RootDir  string
	byTarget map[string]*Rule
	rules    []*Rule
	Vars     *Vars
}

// NewContext creates a registry rooted at rootDir (canonicalized). Every
// RuleSpec.Cwd is resolved against rootDir unless it is itself absolute.
func NewContext(rootDir string) *Context {
	return &Context{
		RootDir:  Normalize(rootDir),
		byTarget: make(map[string]*Rule),
		Vars:     NewVars(),
	}
}

// AddRule canonicalizes every path, validates Cmds, and installs
// targets -> rule, rejecting a target claimed by more than one rule as
// a fatal load-time error.
func (ctx *Context) AddRule(spec RuleSpec) (*Rule, error) {
	if len(spec.Targets) == 0 {
		return nil, newBuildError(ErrLoad, "rule has no targets")
	}
	if len(spec.Cmds) == 0 {
		return nil, newBuildError(ErrLoad, "rule for %v has no commands", spec.Targets)
	}
	for i, cmd := range spec.Cmds {
		if len(cmd) == 0 {
			return nil, newBuildError(ErrLoad, "rule for %v: command %d is empty", spec.Targets, i)
		}
	}

	cwd := spec.Cwd
	if cwd == "" {
		cwd = ctx.RootDir
	} else {
		cwd = Join(ctx.RootDir, cwd)
	}

	canon := func(p string) string { return Join(cwd, p) }
	canonAll := func(ps []string) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = canon(p)
		}
		return out
	}

	targets := canonAll(spec.Targets)
	deps := canonAll(spec.Deps)
	orderOnly := canonAll(spec.OrderOnlyDeps)

	var dFile string
	if spec.DFile != "" {
		dFile = canon(spec.DFile)
	}

	var filterRe *regexp.Regexp
	if spec.StdoutFilter != "" {
		re, err := regexp.Compile(spec.StdoutFilter)
		if err != nil {
			return nil, newBuildError(ErrLoad, "rule for %v: invalid stdout_filter %q: %v", spec.Targets, spec.StdoutFilter, err)
		}
		filterRe = re
	}

	latency := spec.Latency
	if latency <= 0 {
		latency = 1
	}

	cmds := make([][]string, len(spec.Cmds))
	for i, cmd := range spec.Cmds {
		c := make([]string, len(cmd))
		copy(c, cmd)
		cmds[i] = c
	}

	rule := &Rule{
		Targets:          targets,
		Deps:             deps,
		OrderOnlyDeps:    orderOnly,
		Cwd:              cwd,
		Cmds:             cmds,
		DFile:            dFile,
		IncludeScan:      spec.IncludeScan,
		StdoutFilter:     filterRe,
		StdoutFilterText: spec.StdoutFilter,
		Latency:          latency,
	}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for _, t := range targets {
		if existing, ok := ctx.byTarget[t]; ok {
			return nil, newBuildError(ErrLoad, "multiple ways to build target %q (already built by rule for %v)", t, existing.Targets)
		}
	}
	for _, t := range targets {
		ctx.byTarget[t] = rule
	}
	ctx.rules = append(ctx.rules, rule)
	logrus.WithField("targets", targets).Debug("registered rule")

	return rule, nil
}

// Lookup returns the rule that builds target, if any.
func (ctx *Context) Lookup(target string) (*Rule, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	r, ok := ctx.byTarget[target]
	return r, ok
}

// Rules returns every registered rule in registration order.
func (ctx *Context) Rules() []*Rule {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	out := make([]*Rule, len(ctx.rules))
	copy(out, ctx.rules)
	return out
}

// Dirs returns the distinct canonical Cwd values across every registered
// rule, used by persistence to know which per-directory databases to
// load at startup and save at shutdown.
func (ctx *Context) Dirs() []string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	seen := make(map[string]bool)
	var dirs []string
	for _, r := range ctx.rules {
		if !seen[r.Cwd] {
			seen[r.Cwd] = true
			dirs = append(dirs, r.Cwd)
		}
	}
	return dirs
}

// AllTargets returns every canonical target claimed by some rule, used by
// persistence to identify stale database entries.
func (ctx *Context) AllTargets() map[string]bool {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	out := make(map[string]bool, len(ctx.byTarget))
	for t := range ctx.byTarget {
		out[t] = true
	}
	return out
}
