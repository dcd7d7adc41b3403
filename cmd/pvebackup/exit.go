package main

import (
	"errors"
	"fmt"

	"github.com/yourusername/pvebackup/internal/config"
)

// Process exit codes.
const (
	exitOK               = 0
	exitFailure          = 1
	exitConfigMissing    = 2
	exitConfigUnparsable = 3
	exitConfigInvalid    = 4
	exitScheduleInvalid  = 5
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return exitFailure
}

func configError(err error) error {
	switch {
	case errors.Is(err, config.ErrNotFound):
		return withExitCode(exitConfigMissing, err)
	case errors.Is(err, config.ErrUnparsable):
		return withExitCode(exitConfigUnparsable, err)
	case errors.Is(err, config.ErrInvalid):
		return withExitCode(exitConfigInvalid, err)
	default:
		return withExitCode(exitFailure, fmt.Errorf("failed to load configuration: %w", err))
	}
}
