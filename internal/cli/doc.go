// Package cli defines the recipegrid command tree. It validates user input,
// turns flags into an app.Config and reports usage problems as ExitError
// values carrying the process exit code.
package cli
