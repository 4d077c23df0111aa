package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess   = 0 // Run completed with every case passing
	ExitRunFailed = 1 // Run completed but one or more cases failed
	ExitError     = 2 // Configuration or runtime error
)

// RunFailureError indicates the regression run itself completed but one or
// more cases failed execution or were declined by the judge.
type RunFailureError struct {
	Message string
}

func (e *RunFailureError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var runErr *RunFailureError
		if errors.As(err, &runErr) {
			os.Exit(ExitRunFailed)
		}

		os.Exit(ExitError)
	}
}
