// Command mcbench runs integration scenarios through the adaptive VEGAS
// controller and the Gauss–Legendre oracle and reports their accuracy.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errScenariosFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
