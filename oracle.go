// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"errors"
	"os"
)

// timestampOrMissing returns path's modification time as nanoseconds since
// the epoch, or -1 if the path does not exist. Existence and timestamp
// are queried with a single syscall rather than an Exists check followed
// by a separate stat.
func timestampOrMissing(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return -1, nil
		}
		return 0, err
	}
	return info.ModTime().UnixNano(), nil
}

// IsStale is the up-to-date oracle. discovered is the set of
// prerequisites read from the rule's discovered-deps sidecar, if any;
// db is the fingerprint database for the rule's cwd. It assumes every
// declared, discovered, and order-only prerequisite has already
// completed building.
func IsStale(r *Rule, discovered []string, db *FingerprintDB) (bool, error) {
	// Step 1: every declared prerequisite must exist on disk once its
	// producing rule (if any) has finished.
	for _, d := range r.Deps {
		ts, err := timestampOrMissing(d)
		if err != nil {
			return false, err
		}
		if ts < 0 {
			return false, newBuildError(ErrMissingPrereq, "nonexistent dependency %q required by %q", d, r.Targets[0])
		}
	}

	// Step 2: T_target = min(mtime(t) for t in targets); missing -> -1.
	tTarget := int64(-1)
	for i, t := range r.Targets {
		ts, err := timestampOrMissing(t)
		if err != nil {
			return false, err
		}
		if ts < 0 {
			return true, nil
		}
		if i == 0 || ts < tTarget {
			tTarget = ts
		}
	}
	if tTarget < 0 {
		return true, nil
	}

	// Step 4: any declared prerequisite newer than the target forces rebuild.
	for _, d := range r.Deps {
		ts, err := timestampOrMissing(d)
		if err != nil {
			return false, err
		}
		if ts > tTarget {
			return true, nil
		}
	}

	// Step 4 (discovered half): a discovered dep missing or newer forces rebuild.
	for _, d := range discovered {
		ts, err := timestampOrMissing(d)
		if err != nil {
			return false, err
		}
		if ts < 0 || ts > tTarget {
			return true, nil
		}
	}

	// Step 5: consult the fingerprint database. Any mismatch or missing
	// entry forces rebuild.
	sig := Signature(r)
	for _, t := range r.Targets {
		stored, ok := db.Get(t)
		if !ok || stored != sig {
			return true, nil
		}
	}

	return false, nil
}
