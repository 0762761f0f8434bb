package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/aussiebroadwan/stockpanel/internal/stockctl/app"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(os.Args[1:]); err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

// report prints err and returns the exit code. Usage errors exit 2; the bare
// ErrUsage prints nothing since the usage text is already on stderr.
func report(w io.Writer, err error) int {
	usage := errors.Is(err, app.ErrUsage)
	if !usage || err.Error() != app.ErrUsage.Error() {
		_, _ = fmt.Fprintf(w, "stockctl: %v\n", err)
	}
	if usage {
		return 2
	}
	return 1
}
