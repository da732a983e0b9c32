// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

// Package pgcode carries the small set of Postgres SQL state codes the
// placement connection manager needs to attach to the errors it raises,
// plus the severity split FailureReaper uses at commit time.
package pgcode

// Code is a Postgres SQL state code, e.g. "25001".
type Code string

// The codes PCM ever raises. ActiveSQLTransaction is used for every
// conflict the PolicyEngine's decision table detects; Internal covers the
// commit-time fatal failures FailureReaper raises when a shard cannot be
// modified on any node.
const (
	ActiveSQLTransaction Code = "25001"
	Internal             Code = "XX000"
)

// Severity classifies how a FailureReaper condition is surfaced. Errors
// returned by PCM do not carry a Severity; the one SeverityWarning case
// is the post-commit all-replicas-failed condition without 2PC, which
// placement.Manager.CheckPostCommit logs with this value as a field
// instead of returning an error.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "WARNING"
	}
	return "ERROR"
}
