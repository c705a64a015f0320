// Command evalrunner drives a browser agent through an application's user
// journeys and writes one structured verdict to a dedicated output channel.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		fatal(err)
		os.Exit(1)
	}
}
