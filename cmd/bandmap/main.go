package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		cmdBuild(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "regions":
		cmdRegions(os.Args[2:])
	case "hash-token":
		cmdHashToken(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: bandmap <command> [flags]

Commands:
  build        Fetch events, match them to municipalities and write the dataset
  serve        Serve the published dataset over HTTP and MCP
  regions      List, enable or disable the regions fetched by build
  hash-token   Hash an admin token for serve.admin_token_hash
  version      Print the version
`)
}
