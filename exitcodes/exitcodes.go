// Package exitcodes defines the standard exit codes used by specrunner.
package exitcodes

// Exit code constants used by specrunner
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when all spec files pass
// * TestFailure (1): Used when one or more spec files fail
// * RuntimeErr (2): Used for runtime errors such as bad config, panics or spawn failures
// * ReporterStall (3): Used when the run passed but reporters failed to flush in time
const (
	Success       = 0 // All spec files pass
	TestFailure   = 1 // Spec file failures
	RuntimeErr    = 2 // Runtime errors or bad configuration
	ReporterStall = 3 // Run passed but reported output may be incomplete
)
