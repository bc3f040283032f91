package commands

import (
	"errors"

	"github.com/vulntor/webscope/pkg/detect"
	"github.com/vulntor/webscope/pkg/feed"
	"github.com/vulntor/webscope/pkg/signature"
)

// ErrInvalidInput marks flag or argument misuse.
var ErrInvalidInput = errors.New("invalid input")

// Exit codes:
//   - 0: Success
//   - 1: General error
//   - 2: Invalid input, invalid signatures or invalid targets
//   - 4: Signature not found
//   - 7: Target unreachable
const (
	exitOK          = 0
	exitGeneral     = 1
	exitInvalid     = 2
	exitNotFound    = 4
	exitUnreachable = 7
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	var loadErr *signature.LoadError
	switch {
	case errors.Is(err, signature.ErrNotFound):
		return exitNotFound
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, feed.ErrNotConfigured),
		errors.Is(err, signature.ErrInvalidDefinition),
		errors.Is(err, signature.ErrDuplicateName),
		errors.As(err, &loadErr):
		return exitInvalid
	}
	return detect.ExitCode(err)
}

// suggestions returns hints printed under an error in table mode.
func suggestions(err error) []string {
	switch {
	case errors.Is(err, signature.ErrNotFound):
		return []string{"List available signatures:  webscope signatures list"}
	case errors.Is(err, signature.ErrInvalidDefinition),
		errors.Is(err, signature.ErrDuplicateName):
		return []string{"Check signature files:      webscope signatures validate <path>"}
	case errors.Is(err, ErrInvalidInput), errors.Is(err, feed.ErrNotConfigured):
		return nil
	}
	return detect.Suggestions(err)
}

// exitError carries an exit code for failures already reported to the user,
// such as a batch where some targets failed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// Reported reports whether err was already printed by the command.
func Reported(err error) bool {
	var ee *exitError
	return errors.As(err, &ee)
}
