// Package configs provides embedded configuration templates for Retrivo.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they are available in source builds and binary releases alike.
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go NewConfig())
//  2. Global config (~/.codex/retrieval.toml)
//  3. Project config (<workdir>/.codex/retrieval.toml) — wins over global
//  4. Environment variables (RETRIVO_*) — highest precedence
package configs

import _ "embed"

// GlobalConfigTemplate is the template for machine-level configuration.
// Created by: `retrivo config init` at ~/.codex/retrieval.toml.
// Contains settings that apply to all projects on this machine: Ollama host,
// default embedding model, cache sizing.
//
//go:embed global-config.example.toml
var GlobalConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Created by: `retrivo init` at <project>/.codex/retrieval.toml.
// Contains project-specific overrides: chunking, search weights, reranker
// tuning. Version-controlled with the project.
//
//go:embed project-config.example.toml
var ProjectConfigTemplate string
