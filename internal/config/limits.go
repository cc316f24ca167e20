package config

import "fmt"

// CompileLimits bounds a single compile invocation, enforced by cmd/covenant
// before and around a pipeline run rather than inside internal/compiler
// itself (the pipeline stays a pure function of source bytes).
type CompileLimits struct {
	MaxSourceBytes    int `yaml:"max_source_bytes" json:"max_source_bytes,omitempty"`
	MaxCompileSeconds int `yaml:"max_compile_seconds" json:"max_compile_seconds,omitempty"`
}

// Validate checks that the configured limits are sane.
func (l CompileLimits) Validate() error {
	if l.MaxSourceBytes < 1024 {
		return fmt.Errorf("max_source_bytes must be >= 1024")
	}
	if l.MaxCompileSeconds < 1 {
		return fmt.Errorf("max_compile_seconds must be >= 1")
	}
	return nil
}
