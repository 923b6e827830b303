package main

import (
	"fmt"
	"os"

	"github.com/jghoshh/missioncenter/backend"
	"github.com/jghoshh/missioncenter/frontend"
)

const usage = `usage: missioncenter [server|shell]

  server   run the API, the progress event consumers and the catalog cache
  shell    run the interactive member shell (default)`

func main() {
	mode := "shell"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	switch mode {
	case "server":
		backend.RunBackend()
	case "shell":
		frontend.RunFrontend()
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}
