// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Progress renders a single overwritable status line:
// "makepy: N left, building: <leaf names>". It is only active when a
// terminal width is known and neither verbose nor serial mode is in
// effect; per-platform terminal-width queries are not implemented here,
// so the width is supplied by the caller (e.g. from golang.org/x/term,
// or a fixed fallback).
type Progress struct {
	mu       sync.Mutex
	width    int
	lastLen  int
	building map[string]bool
}

// NewProgress creates a progress line renderer for the given terminal
// width. A width <= 0 disables rendering.
func NewProgress(width int) *Progress {
	return &Progress{width: width, building: make(map[string]bool)}
}

// Enabled reports whether this progress line actually renders anything.
func (p *Progress) Enabled() bool {
	return p != nil && p.width > 0
}

// Update redraws the line given the remaining goal count and the set of
// targets currently building.
func (p *Progress) Update(w io.Writer, left int, building map[string]bool) {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(building))
	for t := range building {
		names = append(names, leafName(t))
	}
	sort.Strings(names)

	line := fmt.Sprintf("makepy: %d left, building: %s", left, strings.Join(names, " "))
	if len(line) > p.width {
		line = line[:p.width]
	} else if len(line) < p.width {
		line = line + strings.Repeat(" ", p.width-len(line))
	}
	fmt.Fprint(w, "\r"+line)
	p.lastLen = len(line)
}

// clearLine overwrites the current progress line with blanks before an
// atomic "Built ..." banner is printed, then returns the cursor to
// column 0.
func (p *Progress) clearLine(w io.Writer) {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	n := p.lastLen
	p.mu.Unlock()
	if n == 0 {
		return
	}
	fmt.Fprint(w, "\r"+strings.Repeat(" ", n)+"\r")
}

func leafName(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
