// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDepFileMissingIsNotError(t *testing.T) {
	t.Parallel()
	deps, err := ReadDepFile(filepath.Join(t.TempDir(), "nope.d"), "/proj")
	require.NoError(t, err)
	assert.Nil(t, deps)
}

func TestParseDepFileJoinsContinuationsAndDropsTarget(t *testing.T) {
	t.Parallel()
	contents := "out/a.o: \\\n  src/a.c \\\n  src/a.h \\\n\n"
	deps := parseDepFile(contents, "/proj")
	assert.Equal(t, []string{"/proj/src/a.c", "/proj/src/a.h"}, deps)
}

func TestParseDepFilePlainSplitWhenNoBackslashSurvives(t *testing.T) {
	t.Parallel()
	// No continuation at all: single physical line, split on whitespace.
	contents := "out/a.o: src/a.c src/a.h\n"
	deps := parseDepFile(contents, "/proj")
	assert.Equal(t, []string{"/proj/src/a.c", "/proj/src/a.h"}, deps)
}

func TestParseDepFileEmptyYieldsNoDeps(t *testing.T) {
	t.Parallel()
	assert.Nil(t, parseDepFile("", "/proj"))
}

func TestSplitPOSIXQuotedHonorsBackslashEscape(t *testing.T) {
	t.Parallel()
	fields := splitPOSIXQuoted(`a\ b c`)
	assert.Equal(t, []string{"a b", "c"}, fields)
}

func TestWriteThenReadDepFileRoundTrips(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.d")

	require.NoError(t, WriteDepFile(path, "/proj/out/a.o", []string{
		"/proj/src/b.h", "/proj/src/a.h", "/proj/src/a.h",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/proj/out/a.o: \\\n")
	assert.Contains(t, string(data), "  /proj/src/a.h \\\n")
	assert.Contains(t, string(data), "  /proj/src/b.h \\\n")

	deps, err := ReadDepFile(path, "/proj")
	require.NoError(t, err)
	assert.Equal(t, []string{"/proj/src/a.h", "/proj/src/b.h"}, deps)
}
