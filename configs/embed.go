// Package configs provides embedded configuration templates.
//
// Templates are embedded at build time with //go:embed so they ship in
// every distribution. `loreleaf init` writes the project template to
// .loreleaf.yaml; the user template documents machine-level settings
// at ~/.config/loreleaf/config.yaml.
//
// Configuration precedence (see internal/config.Load):
//  1. Hardcoded defaults (internal/config.NewConfig)
//  2. User config (~/.config/loreleaf/config.yaml)
//  3. Project config (.loreleaf.yaml)
//  4. Environment variables (LORELEAF_*)
package configs

import _ "embed"

// ProjectConfigTemplate is written to .loreleaf.yaml by `loreleaf init`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// UserConfigTemplate documents machine-level configuration.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
