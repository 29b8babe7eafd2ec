package el_service

import "strings"

// FormatVersion joins the release version with the short git commit, the commit date and build metadata.
func FormatVersion(version string, gitCommit string, gitDate string, meta string) string {
	v := version
	if gitCommit != "" {
		if len(gitCommit) >= 8 {
			v += "-" + gitCommit[:8]
		} else {
			v += "-" + gitCommit
		}
	}
	if gitDate != "" {
		v += "-" + gitDate
	}
	if meta != "" {
		v += "-" + meta
	}
	return v
}

// PrefixEnvVar returns the environment variable name(s) for a flag,
// upper-cased and joined to the service prefix with an underscore.
func PrefixEnvVar(prefix, suffix string) []string {
	return []string{prefix + "_" + strings.ToUpper(strings.ReplaceAll(suffix, "-", "_"))}
}
