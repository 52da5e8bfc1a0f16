// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

package makepy

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
)

// Signature computes a deterministic SHA-1 hex digest over (targets,
// deps, cwd, cmds, d_file, include_scan). order_only_deps,
// stdout_filter, latency, and priority are deliberately excluded so
// that changing them never forces a rebuild.
func Signature(r *Rule) string {
	h := sha1.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	writeAll := func(ss []string) {
		write(strconv.Itoa(len(ss)))
		for _, s := range ss {
			write(s)
		}
	}

	writeAll(r.Targets)
	writeAll(r.Deps)
	write(r.Cwd)

	write(strconv.Itoa(len(r.Cmds)))
	for _, cmd := range r.Cmds {
		writeAll(cmd)
	}

	write(r.DFile)
	write(strings.TrimSpace(boolString(r.IncludeScan)))

	return hex.EncodeToString(h.Sum(nil))
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
