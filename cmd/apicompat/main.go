// Command apicompat fails when the API description drops something a
// published baseline still offers.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	_ "feedline/docs"

	"github.com/swaggo/swag"
)

func main() {
	basePath := flag.String("base", "", "baseline swagger.yaml or swagger.json")
	revisionPath := flag.String("revision", "", "revision document; defaults to the docs compiled into this binary")
	flag.Parse()

	if strings.TrimSpace(*basePath) == "" {
		fmt.Fprintln(os.Stderr, "usage: apicompat -base <path> [-revision <path>]")
		os.Exit(2)
	}

	base, err := load(*basePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base spec: %v\n", err)
		os.Exit(1)
	}
	revision, err := load(*revisionPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load revision spec: %v\n", err)
		os.Exit(1)
	}

	if issues := breakingChanges(base, revision); len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "backward compatibility check failed:")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "- %s\n", issue)
		}
		os.Exit(1)
	}
	fmt.Println("openapi compatibility check passed")
}

func load(path string) (surface, error) {
	if path == "" {
		doc, err := swag.ReadDoc()
		if err != nil {
			return nil, err
		}
		return parseSurface([]byte(doc))
	}
	// #nosec G304: path comes from CLI flags in a dev tool
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSurface(raw)
}
