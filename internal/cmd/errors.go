package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"
)

// codedError carries the process exit code alongside the message shown
// to the user.
type codedError struct {
	code foundry.ExitCode
	msg  string
	err  error
}

func (e *codedError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *codedError) Unwrap() error { return e.err }

// exitError wraps an error for RunE handlers. Execute maps the code to
// the process exit status.
func exitError(code foundry.ExitCode, msg string, err error) error {
	return &codedError{code: code, msg: msg, err: err}
}

// exitCodeFor resolves the exit status for a CLI error.
func exitCodeFor(err error) int {
	var ce *codedError
	if errors.As(err, &ce) {
		return int(ce.code)
	}
	return 1
}

// ExitWithCode logs a fatal error and terminates immediately. Reserved
// for situations where returning through RunE is not possible.
func ExitWithCode(logger *zap.Logger, code foundry.ExitCode, msg string, err error) {
	logger.Error(msg, zap.Error(err))
	_ = logger.Sync()
	os.Exit(int(code))
}
