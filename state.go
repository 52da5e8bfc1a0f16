// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const outDirName = "_out"
const dbFileName = "make.db"

// FingerprintDB is the per-cwd fingerprint database: a mapping from
// canonical target path to its last-recorded signature, persisted as
// <cwd>/_out/make.db.
type FingerprintDB struct {
	mu      sync.Mutex
	cwd     string
	entries map[string]string
}

// dbPath returns <cwd>/_out/make.db.
func dbPath(cwd string) string {
	return filepath.Join(cwd, outDirName, dbFileName)
}

// loadFingerprintDB reads <cwd>/_out/make.db, returning an empty database
// if the file doesn't exist.
func loadFingerprintDB(cwd string) (*FingerprintDB, error) {
	db := &FingerprintDB{cwd: cwd, entries: make(map[string]string)}
	f, err := os.Open(dbPath(cwd))
	if err != nil {
		if os.IsNotExist(err) {
			return db, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			logrus.WithField("line", line).Warn("skipping malformed fingerprint database record")
			continue
		}
		db.entries[parts[0]] = parts[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return db, nil
}

// Get returns the stored signature for target, if any.
func (db *FingerprintDB) Get(target string) (string, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.entries[target]
	return s, ok
}

// Set records target's signature.
func (db *FingerprintDB) Set(target, signature string) {
	db.mu.Lock()
	db.entries[target] = signature
	db.mu.Unlock()
}

// Delete removes target's entry, used on pre-delete and on-failure
// cleanup.
func (db *FingerprintDB) Delete(target string) {
	db.mu.Lock()
	delete(db.entries, target)
	db.mu.Unlock()
}

// Targets returns every target currently recorded in the database.
func (db *FingerprintDB) Targets() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.entries))
	for t := range db.entries {
		out = append(out, t)
	}
	return out
}

// save rewrites <cwd>/_out/make.db, creating _out if absent.
func (db *FingerprintDB) save() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	dir := filepath.Join(db.cwd, outDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	targets := make([]string, 0, len(db.entries))
	for t := range db.entries {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	var b strings.Builder
	for _, t := range targets {
		fmt.Fprintf(&b, "%s %s\n", t, db.entries[t])
	}

	return os.WriteFile(dbPath(db.cwd), []byte(b.String()), 0o644)
}

// Store owns one FingerprintDB per rule cwd, loaded at startup and saved
// at shutdown.
type Store struct {
	mu  sync.Mutex
	dbs map[string]*FingerprintDB
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{dbs: make(map[string]*FingerprintDB)}
}

// LoadAll loads (or creates empty) a FingerprintDB for each directory.
func (s *Store) LoadAll(dirs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dir := range dirs {
		if _, ok := s.dbs[dir]; ok {
			continue
		}
		db, err := loadFingerprintDB(dir)
		if err != nil {
			return fmt.Errorf("loading fingerprint database for %s: %w", dir, err)
		}
		s.dbs[dir] = db
		logrus.WithFields(logrus.Fields{"cwd": dir, "entries": len(db.entries)}).Debug("loaded fingerprint database")
	}
	return nil
}

// DB returns (creating if necessary) the FingerprintDB for cwd.
func (s *Store) DB(cwd string) *FingerprintDB {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.dbs[cwd]
	if !ok {
		db = &FingerprintDB{cwd: cwd, entries: make(map[string]string)}
		s.dbs[cwd] = db
	}
	return db
}

// SaveAll persists every loaded database.
func (s *Store) SaveAll() error {
	s.mu.Lock()
	dbs := make([]*FingerprintDB, 0, len(s.dbs))
	for _, db := range s.dbs {
		dbs = append(dbs, db)
	}
	s.mu.Unlock()

	for _, db := range dbs {
		if err := db.save(); err != nil {
			return err
		}
	}
	return nil
}

// CleanStaleTargets deletes any on-disk target and database entry that is
// recorded in a loaded database but no longer claimed by any rule in ctx.
func (s *Store) CleanStaleTargets(ctx *Context) {
	live := ctx.AllTargets()

	s.mu.Lock()
	dbs := make([]*FingerprintDB, 0, len(s.dbs))
	for _, db := range s.dbs {
		dbs = append(dbs, db)
	}
	s.mu.Unlock()

	for _, db := range dbs {
		for _, t := range db.Targets() {
			if live[t] {
				continue
			}
			if err := os.Remove(t); err != nil && !os.IsNotExist(err) {
				logrus.WithError(err).WithField("target", t).Warn("failed to delete stale target")
			} else {
				logrus.WithField("target", t).Info("deleted stale target")
			}
			db.Delete(t)
		}
	}
}

// Clean removes the entire _out subtree under each directory and clears
// any in-memory database entries for it.
func (s *Store) Clean(dirs []string) error {
	for _, dir := range dirs {
		path := filepath.Join(dir, outDirName)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("cleaning %s: %w", path, err)
		}
		s.mu.Lock()
		s.dbs[dir] = &FingerprintDB{cwd: dir, entries: make(map[string]string)}
		s.mu.Unlock()
	}
	return nil
}
