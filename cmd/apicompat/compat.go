package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var supportedMethods = map[string]struct{}{
	"get": {}, "put": {}, "post": {}, "delete": {}, "patch": {}, "head": {}, "options": {},
}

// surface is the part of an API description clients depend on: which
// operations exist and which response codes they may see.
type surface map[string]map[string]map[string]struct{}

// parseSurface reads a Swagger/OpenAPI document. JSON is valid YAML, so the
// generated swag output and a committed swagger.yaml both parse here.
func parseSurface(raw []byte) (surface, error) {
	var doc struct {
		Paths map[string]map[string]yaml.Node `yaml:"paths"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Paths == nil {
		return nil, errors.New("missing top-level paths field")
	}

	out := make(surface, len(doc.Paths))
	for path, ops := range doc.Paths {
		for method, node := range ops {
			method = strings.ToLower(strings.TrimSpace(method))
			if _, ok := supportedMethods[method]; !ok {
				continue
			}
			var op struct {
				Responses map[string]yaml.Node `yaml:"responses"`
			}
			if err := node.Decode(&op); err != nil {
				return nil, fmt.Errorf("%s %s: %w", strings.ToUpper(method), path, err)
			}
			codes := make(map[string]struct{}, len(op.Responses))
			for code := range op.Responses {
				if code = strings.ToLower(strings.TrimSpace(code)); code != "" {
					codes[code] = struct{}{}
				}
			}
			if out[path] == nil {
				out[path] = make(map[string]map[string]struct{})
			}
			out[path][method] = codes
		}
	}
	return out, nil
}

// breakingChanges lists what base offers that revision no longer does.
// Additions are compatible and never reported.
func breakingChanges(base, revision surface) []string {
	var issues []string
	for path, baseOps := range base {
		revOps, ok := revision[path]
		if !ok {
			issues = append(issues, "removed path: "+path)
			continue
		}
		for method, baseCodes := range baseOps {
			revCodes, ok := revOps[method]
			if !ok {
				issues = append(issues, fmt.Sprintf("removed operation: %s %s", strings.ToUpper(method), path))
				continue
			}
			for code := range baseCodes {
				if _, ok := revCodes[code]; !ok {
					issues = append(issues, fmt.Sprintf("removed response code: %s %s -> %s",
						strings.ToUpper(method), path, strings.ToUpper(code)))
				}
			}
		}
	}
	sort.Strings(issues)
	return issues
}
