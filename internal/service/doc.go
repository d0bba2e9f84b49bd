// Package service implements the user and organizational unit operations on
// top of the directory client: input validation, lookups, attribute deltas
// for edits, account creation and the OU list.
//
// Errors are classified with ErrValidation, ErrNotFound, ErrConflict and
// ErrTransport, which remain matchable through the oops context wrapping.
package service
