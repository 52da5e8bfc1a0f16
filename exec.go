// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

var includeScanRe = regexp.MustCompile(`^Note: including file:\s*(.*)$`)

const systemPathPrefix = "c:/program files"

// Executor runs a single rule's commands. One Executor is
// shared by every worker in a build; ioMu serializes stdout writes and
// subprocess spawn.
type Executor struct {
	store    *Store
	verbose  bool
	progress *Progress
	stdout   io.Writer

	ioMu sync.Mutex
}

// NewExecutor creates an Executor. progress may be nil when the progress
// line is disabled (verbose or serial mode).
func NewExecutor(store *Store, verbose bool, progress *Progress) *Executor {
	return &Executor{
		store:    store,
		verbose:  verbose,
		progress: progress,
		stdout:   os.Stdout,
	}
}

// Execute runs rule r to completion: pre-delete, mkdir -p, run each
// command in sequence, and on success commit the rule's signature to its
// cwd's fingerprint database. On failure every target is deleted and the
// error is returned; the caller is responsible for setting any_errors and
// cancelling remaining work.
func (e *Executor) Execute(r *Rule) error {
	db := e.store.DB(r.Cwd)

	e.predelete(r, db)
	if err := e.ensureParentDirs(r); err != nil {
		return err
	}

	var accumulator strings.Builder
	for _, cmd := range r.Cmds {
		out, code, err := e.runOne(r, cmd)
		if err != nil {
			return err
		}
		accumulator.WriteString(out)
		if code != 0 {
			e.atomicBanner(r, accumulator.String())
			fmt.Fprintf(os.Stderr, "'%s' failed with exit code %d\n", strings.Join(cmd, " "), code)
			e.predelete(r, db)
			return newBuildError(ErrCommandFailed, "command %v for target %q exited with code %d", cmd, r.Targets[0], code)
		}
	}

	for _, t := range r.Targets {
		db.Set(t, Signature(r))
	}

	e.atomicBanner(r, accumulator.String())
	return nil
}

// predelete removes every target from disk and from the fingerprint
// database.
func (e *Executor) predelete(r *Rule, db *FingerprintDB) {
	for _, t := range r.Targets {
		info, err := os.Stat(t)
		if err == nil {
			if info.IsDir() {
				_ = os.RemoveAll(t)
			} else {
				_ = os.Remove(t)
			}
		}
		db.Delete(t)
	}
}

// ensureParentDirs creates the parent directory of every target before
// any command runs.
func (e *Executor) ensureParentDirs(r *Rule) error {
	for _, t := range r.Targets {
		dir := filepath.Dir(t)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %q: %w", dir, err)
		}
	}
	return nil
}

// runOne executes a single command vector, returning its (possibly
// filtered) captured output, its exit code, and any non-command error.
func (e *Executor) runOne(r *Rule, cmd []string) (output string, code int, err error) {
	e.ioMu.Lock()
	c := exec.Command(cmd[0], cmd[1:]...)
	c.Dir = r.Cwd
	stdout, pipeErr := c.StdoutPipe()
	if pipeErr == nil {
		c.Stderr = c.Stdout
	}
	var spawnErr error
	if pipeErr == nil {
		spawnErr = c.Start()
	} else {
		spawnErr = pipeErr
	}
	e.ioMu.Unlock()

	var raw string
	var exitCode int
	if spawnErr != nil {
		raw = spawnErr.Error()
		exitCode = 1
		logrus.WithError(spawnErr).WithField("cmd", cmd).Debug("spawn failed")
	} else {
		data, readErr := io.ReadAll(stdout)
		if readErr != nil {
			logrus.WithError(readErr).WithField("cmd", cmd).Warn("error reading command output")
		}
		waitErr := c.Wait()
		raw = decodeUTF8Lenient(data)
		raw = strings.TrimRight(raw, " \t\r\n")
		if waitErr != nil {
			if exitErr, ok := waitErr.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = 1
			}
		}
	}

	filtered, err := e.postProcess(r, cmd, raw, exitCode)
	if err != nil {
		return "", 0, err
	}

	if e.verbose || exitCode != 0 {
		if filtered != "" {
			filtered = shellQuote(cmd) + "\n" + filtered
		} else {
			filtered = shellQuote(cmd)
		}
	}
	if filtered != "" {
		filtered += "\n"
	}

	return filtered, exitCode, nil
}

// postProcess applies include-scan extraction or the stdout filter to a
// command's raw captured output.
func (e *Executor) postProcess(r *Rule, cmd []string, raw string, exitCode int) (string, error) {
	if r.IncludeScan {
		return e.scanIncludes(r, raw)
	}
	if r.StdoutFilter != nil {
		var kept []string
		for _, line := range strings.Split(raw, "\n") {
			if !r.StdoutFilter.MatchString(line) {
				kept = append(kept, line)
			}
		}
		return strings.Join(kept, "\n"), nil
	}
	return raw, nil
}

func (e *Executor) scanIncludes(r *Rule, raw string) (string, error) {
	if len(r.Targets) != 1 {
		return "", newBuildError(ErrLoad, "include_scan requires exactly one target, got %v", r.Targets)
	}

	depSet := make(map[string]bool)
	var rest []string
	for _, line := range strings.Split(raw, "\n") {
		if m := includeScanRe.FindStringSubmatch(line); m != nil {
			dep := Normalize(m[1])
			if !strings.HasPrefix(dep, systemPathPrefix) {
				depSet[dep] = true
			}
			continue
		}
		rest = append(rest, line)
	}

	deps := make([]string, 0, len(depSet))
	for d := range depSet {
		deps = append(deps, d)
	}
	if err := WriteDepFile(r.DFile, r.Targets[0], deps); err != nil {
		return "", fmt.Errorf("writing discovered-deps sidecar %q: %w", r.DFile, err)
	}

	// If only one unmatched line remains, it is the compiler's source-file
	// echo; suppress it entirely.
	var nonEmpty []string
	for _, l := range rest {
		if l != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if len(nonEmpty) == 1 {
		return "", nil
	}
	return strings.Join(rest, "\n"), nil
}

// atomicBanner prints the consolidated "Built '...'" block under the
// shared I/O mutex.
func (e *Executor) atomicBanner(r *Rule, accumulated string) {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()

	if e.progress != nil {
		e.progress.clearLine(e.stdout)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Built '%s'.\n", strings.Join(r.Targets, "'\n  and '"))
	if strings.TrimSpace(accumulated) != "" {
		b.WriteString(accumulated)
		b.WriteString("\n")
	}
	io.WriteString(e.stdout, b.String())
}

// decodeUTF8Lenient decodes data as UTF-8, replacing invalid sequences
// rather than failing; undecodable bytes never cause a hard failure.
func decodeUTF8Lenient(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	var b bytes.Buffer
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		b.WriteRune(r)
		data = data[size:]
	}
	return b.String()
}

// shellQuote reproduces cmd as a shell-quotable string for verbose/failed
// command echoing.
func shellQuote(cmd []string) string {
	parts := make([]string, len(cmd))
	for i, arg := range cmd {
		parts[i] = shellQuoteArg(arg)
	}
	return strings.Join(parts, " ")
}

func shellQuoteArg(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r == '_' || r == '-' || r == '.' || r == '/' || r == ':' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
