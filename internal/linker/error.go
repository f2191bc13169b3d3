package linker

import (
	"errors"
	"fmt"

	"aotrt/internal/pipeline"
)

// ErrBaseCycle reports types that (transitively) derive from themselves.
var ErrBaseCycle = errors.New("cyclic base types")

// Error ties a link failure to the stage and, when known, the module or
// manifest entry it came from.
type Error struct {
	Stage   pipeline.Stage
	Subject string
	Err     error
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("link %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("link %s: %s: %v", e.Stage, e.Subject, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func stageErr(stage pipeline.Stage, subject string, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{Stage: stage, Subject: subject, Err: err}
}
