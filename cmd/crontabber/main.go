// Command crontabber is the periodic entrypoint: invoked by an
// external timer (cron, systemd timer), it runs due jobs once and
// exits with a status reflecting spec.md §6's exit-code contract.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
