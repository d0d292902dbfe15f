package installation

import "regexp"

// versionRe matches the first semantic-version-shaped token: one or more
// digit groups separated by dots, at least two groups ("5.6.3", "5.6").
var versionRe = regexp.MustCompile(`\d+(?:\.\d+)+`)

// ParseVersion extracts the version string from the combined stdout/stderr
// of the JMeter version probe. It is a pure function over the captured text
// so it stays testable without running a process. Returns "" when no
// version-shaped token is present; callers treat that as "version unknown",
// never as an error.
func ParseVersion(output string) string {
	return versionRe.FindString(output)
}
