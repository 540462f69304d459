package foldercache

import _ "embed"

// DefaultConfig holds the built-in configuration defaults.
//
//go:embed config/foldercache.yaml
var DefaultConfig []byte
