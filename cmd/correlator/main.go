// Command correlator is the host orchestrator binary around the
// correlation core: it owns rule-document loading, sink wiring, the
// external read API, and the start/stop/reload-rules/stats CLI surface
// §6 specifies. None of this belongs to the core package set itself.
package main

import (
	"os"

	"github.com/telhawk-systems/logiccorrelator/cmd/correlator/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
