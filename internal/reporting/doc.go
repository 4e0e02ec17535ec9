// Package reporting turns the progress and results of platform runs into
// output for people and machines.
//
// Progress is delivered as PhaseUpdate values to a Reporter. The
// ConsoleReporter logs them, the Recorder keeps them for later inspection,
// and Multi fans out to several reporters at once. Reporters are called from
// concurrently running platforms and must be safe for concurrent use.
//
// Results are described by a Summary, which RenderSummary prints as a table
// with failure details and WriteJSON stores as a machine-readable report.
package reporting
