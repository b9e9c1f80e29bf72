package cli

import (
	"fmt"
	"os"

	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
)

// PrintError prints an error to stderr. A BotError is shown in its
// user-facing form; --verbose adds its code and cause.
func PrintError(err error) {
	if be := boterrors.AsBotError(err); be != nil {
		fmt.Fprintln(os.Stderr, be.UserMessage())
		if verbose {
			fmt.Fprintf(os.Stderr, "\nCode: %s\n", be.Code)
			if be.Cause != nil {
				fmt.Fprintf(os.Stderr, "Cause: %v\n", be.Cause)
			}
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
