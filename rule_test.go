// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRuleCanonicalizesPathsAgainstRootDir(t *testing.T) {
	t.Parallel()
	ctx := NewContext("/proj")
	r, err := ctx.AddRule(RuleSpec{
		Targets: []string{"out/a.o"},
		Deps:    []string{"src/a.c"},
		Cmds:    [][]string{{"cc", "-c", "src/a.c", "-o", "out/a.o"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/proj/out/a.o"}, r.Targets)
	assert.Equal(t, []string{"/proj/src/a.c"}, r.Deps)
	assert.Equal(t, "/proj", r.Cwd)
}

func TestAddRuleRejectsConflictingTarget(t *testing.T) {
	t.Parallel()
	ctx := NewContext("/proj")
	_, err := ctx.AddRule(RuleSpec{
		Targets: []string{"out/a.o"},
		Cmds:    [][]string{{"cc"}},
	})
	require.NoError(t, err)

	_, err = ctx.AddRule(RuleSpec{
		Targets: []string{"out/a.o"},
		Cmds:    [][]string{{"cc", "-O2"}},
	})
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, ErrLoad, be.Kind)
}

func TestAddRuleRejectsEmptyTargetsOrCmds(t *testing.T) {
	t.Parallel()
	ctx := NewContext("/proj")

	_, err := ctx.AddRule(RuleSpec{Cmds: [][]string{{"cc"}}})
	require.Error(t, err)

	_, err = ctx.AddRule(RuleSpec{Targets: []string{"a.o"}})
	require.Error(t, err)

	_, err = ctx.AddRule(RuleSpec{Targets: []string{"a.o"}, Cmds: [][]string{{}}})
	require.Error(t, err)
}

func TestAddRuleDefaultsLatencyToOne(t *testing.T) {
	t.Parallel()
	ctx := NewContext("/proj")
	r, err := ctx.AddRule(RuleSpec{
		Targets: []string{"a.o"},
		Cmds:    [][]string{{"cc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), r.Latency)
}

func TestAddRulePreservesExplicitLatency(t *testing.T) {
	t.Parallel()
	ctx := NewContext("/proj")
	r, err := ctx.AddRule(RuleSpec{
		Targets: []string{"a.o"},
		Cmds:    [][]string{{"cc"}},
		Latency: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(10), r.Latency)
}

func TestAddRuleHonorsExplicitCwd(t *testing.T) {
	t.Parallel()
	ctx := NewContext("/proj")
	r, err := ctx.AddRule(RuleSpec{
		Targets: []string{"a.o"},
		Cmds:    [][]string{{"cc"}},
		Cwd:     "sub",
	})
	require.NoError(t, err)
	assert.Equal(t, "/proj/sub", r.Cwd)
	assert.Equal(t, []string{"/proj/sub/a.o"}, r.Targets)
}

func TestAddRuleCompilesStdoutFilter(t *testing.T) {
	t.Parallel()
	ctx := NewContext("/proj")
	r, err := ctx.AddRule(RuleSpec{
		Targets:      []string{"a.o"},
		Cmds:         [][]string{{"cc"}},
		StdoutFilter: "^warning:",
	})
	require.NoError(t, err)
	require.NotNil(t, r.StdoutFilter)
	assert.True(t, r.StdoutFilter.MatchString("warning: unused variable"))
}

func TestAddRuleRejectsInvalidStdoutFilter(t *testing.T) {
	t.Parallel()
	ctx := NewContext("/proj")
	_, err := ctx.AddRule(RuleSpec{
		Targets:      []string{"a.o"},
		Cmds:         [][]string{{"cc"}},
		StdoutFilter: "(unterminated",
	})
	require.Error(t, err)
}

func TestLookupReturnsRegisteredRule(t *testing.T) {
	t.Parallel()
	ctx := NewContext("/proj")
	r, err := ctx.AddRule(RuleSpec{Targets: []string{"a.o"}, Cmds: [][]string{{"cc"}}})
	require.NoError(t, err)

	found, ok := ctx.Lookup("/proj/a.o")
	require.True(t, ok)
	assert.Same(t, r, found)

	_, ok = ctx.Lookup("/proj/nonexistent")
	assert.False(t, ok)
}

func TestDirsReturnsDistinctCwds(t *testing.T) {
	t.Parallel()
	ctx := NewContext("/proj")
	_, err := ctx.AddRule(RuleSpec{Targets: []string{"a.o"}, Cmds: [][]string{{"cc"}}, Cwd: "x"})
	require.NoError(t, err)
	_, err = ctx.AddRule(RuleSpec{Targets: []string{"b.o"}, Cmds: [][]string{{"cc"}}, Cwd: "x"})
	require.NoError(t, err)
	_, err = ctx.AddRule(RuleSpec{Targets: []string{"c.o"}, Cmds: [][]string{{"cc"}}, Cwd: "y"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"/proj/x", "/proj/y"}, ctx.Dirs())
}

func TestAllTargetsReturnsEveryRegisteredTarget(t *testing.T) {
	t.Parallel()
	ctx := NewContext("/proj")
	_, err := ctx.AddRule(RuleSpec{Targets: []string{"a.o", "a.d"}, Cmds: [][]string{{"cc"}}})
	require.NoError(t, err)

	all := ctx.AllTargets()
	assert.True(t, all["/proj/a.o"])
	assert.True(t, all["/proj/a.d"])
	assert.Len(t, all, 2)
}

func TestRulePrioritySetPriorityTakesMax(t *testing.T) {
	t.Parallel()
	r := &Rule{Targets: []string{"a"}}
	r.setPriority(5)
	r.setPriority(2)
	assert.Equal(t, float64(5), r.getPriority())
	r.setPriority(9)
	assert.Equal(t, float64(9), r.getPriority())
}
