// Package hcl provides the concrete HCL implementation for the environment
// file loading and expression evaluation interfaces defined in the `config`
// package. It is responsible for file discovery, import resolution,
// HCL-to-model translation, and evaluating recipe expressions against a
// build variant.
package hcl
