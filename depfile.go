// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"os"
	"sort"
	"strings"
)

// ReadDepFile loads the discovered-deps sidecar at path. A missing
// sidecar is not an error: it simply contributes no discovered
// prerequisites. Paths in the file are resolved against cwd and
// canonicalized.
//
// Continuation lines are joined, the leading "TARGET:" token is
// dropped, and the remainder is split on whitespace with
// strings.Fields, which mis-splits a path that contains a space but
// no backslash. POSIX-style quoting is only applied when a literal
// backslash remains after the continuations are joined; this is a deliberately
// preserved quirk, not a bug to fix.
func ReadDepFile(path, cwd string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return parseDepFile(string(data), cwd), nil
}

func parseDepFile(contents, cwd string) []string {
	joined := strings.ReplaceAll(contents, "\\\n", "")

	var fields []string
	if strings.Contains(contents, "\\") && strings.Contains(joined, "\\") {
		// A literal backslash survives in the joined text only when it
		// wasn't part of a line-continuation; fall back to POSIX-style
		// quoting for the remainder of this (rare) case.
		fields = splitPOSIXQuoted(joined)
	} else {
		fields = strings.Fields(joined)
	}

	if len(fields) == 0 {
		return nil
	}
	// Drop the leading "TARGET:" token.
	deps := fields[1:]

	out := make([]string, 0, len(deps))
	for _, d := range deps {
		out = append(out, Join(cwd, d))
	}
	return out
}

// splitPOSIXQuoted performs a minimal POSIX-style whitespace split that
// honors backslash escapes, used only when the sidecar payload contains a
// literal backslash outside of a line continuation.
func splitPOSIXQuoted(s string) []string {
	var fields []string
	var cur strings.Builder
	inField := false
	escaped := false
	for _, r := range s {
		if escaped {
			cur.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case r == '\\':
			escaped = true
			inField = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()
				inField = false
			}
		default:
			cur.WriteRune(r)
			inField = true
		}
	}
	if inField {
		fields = append(fields, cur.String())
	}
	return fields
}

// WriteDepFile writes the discovered-deps sidecar for a single target:
// "<target>: \\\n" followed by one "  <dep> \\\n" line per sorted,
// de-duplicated dep, then a trailing blank line. include_scan mode
// requires exactly one target.
func WriteDepFile(path, target string, deps []string) error {
	unique := make(map[string]bool, len(deps))
	for _, d := range deps {
		unique[d] = true
	}
	sorted := make([]string, 0, len(unique))
	for d := range unique {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString(target)
	b.WriteString(": \\\n")
	for _, d := range sorted {
		b.WriteString("  ")
		b.WriteString(d)
		b.WriteString(" \\\n")
	}
	b.WriteString("\n")

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
