// Copyright 2024 The Shardbridge Authors.
//
// Use of this software is governed by the Shardbridge Software License
// included in the /LICENSE file.

package pgcode

import "github.com/cockroachdb/errors"

// Newf builds a new error carrying code as its candidate SQL state.
func Newf(code Code, format string, args ...interface{}) error {
	err := errors.Newf(format, args...)
	return errors.WithCandidateCode(err, string(code))
}

// Wrapf wraps err, adding a message and a candidate SQL state. If the
// wrapped error already carries a code, WithCandidateCode leaves it
// alone: candidates never override an existing one.
func Wrapf(err error, code Code, format string, args ...interface{}) error {
	err = errors.Wrapf(err, format, args...)
	return errors.WithCandidateCode(err, string(code))
}
