// Package config defines the format-agnostic model of recipe environment
// files, along with the core interfaces (Loader, Converter) for loading
// them and evaluating their per-variant expressions.
//
// The `config.Model` is the single input of the graph builder in the `dag`
// package. Concrete implementations of the interfaces, such as for HCL, are
// provided in separate packages.
package config
