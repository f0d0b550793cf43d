// Package testutil provides shared fixtures for rackbrain tests.
//
// It should only be imported by test files (*_test.go).
package testutil

import "errors"

// Mock errors returned by fakes to simulate collaborator failures.
var (
	// ErrMockJira simulates a failing Jira call.
	ErrMockJira = errors.New("jira unavailable")

	// ErrMockSearch simulates a failing JQL search.
	ErrMockSearch = errors.New("search failed")

	// ErrMockTimerStore simulates an unreadable timer database.
	ErrMockTimerStore = errors.New("timer store unavailable")

	// ErrMockDBUnreachable simulates a database that refuses connections.
	ErrMockDBUnreachable = errors.New("database unreachable")

	// ErrMockRemote simulates a remote command wrapper failure.
	ErrMockRemote = errors.New("remote command failed")
)
