// vibroscope watches a frame stream for vibration: it builds filtered
// difference images over a sliding window, keeps per-region statistics
// and raises alerts when a region stays above its calibrated threshold.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "vibroscope",
		Short:        "Vibration detection over video frame streams",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newValidateCmd(), newSimulateCmd())
	if err := root.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
