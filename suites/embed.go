// Package suites embeds the suites shipped with the binary.
package suites

import "embed"

// FS holds every *.yaml suite in this directory.
//
//go:embed *.yaml
var FS embed.FS
