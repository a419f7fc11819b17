// Package configs embeds the configuration template written by
// `docrag config init`.
//
// Configuration precedence (see internal/config Load):
//  1. Hardcoded defaults (config.NewConfig)
//  2. User config (~/.config/docrag/config.yaml)
//  3. Project config (.docrag.yaml)
//  4. Environment variables (DOCRAG_*)
package configs

import _ "embed"

// ProjectConfigTemplate is the commented .docrag.yaml created in a project
// directory. Every value matches the built-in default.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
