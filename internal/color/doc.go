// Package color provides terminal detection and the styles used for the
// run summary.
//
// Styles use adaptive colors, so Initialize should be called once with the
// terminal's background mode. When output is not a terminal, or NO_COLOR is
// set, Configure switches lipgloss to plain ASCII so reports written to
// files or CI logs carry no escape sequences.
//
// # Usage Example
//
//	color.Configure(os.Stdout)
//	fmt.Println(color.SuccessStyle.Render("SUCCESS"))
//	fmt.Println(color.FailureStyle.Render("FAILED"))
package color
