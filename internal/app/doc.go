// Package app contains the core application logic of recipegrid. It owns the
// run configuration and drives one build run from loading the environment
// files to writing the per-variant environment files, decoupled from the
// command line entrypoint.
package app
