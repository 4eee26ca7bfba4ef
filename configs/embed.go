// Package configs embeds the configuration template written by
// `cmsindex config init`.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented cmsindex.yaml written into a
// project directory. It must load to the same values as config.NewConfig.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
