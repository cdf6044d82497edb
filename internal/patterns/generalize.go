package patterns

import "regexp"

// Generalization rules applied to a concrete incident message when an
// operator teaches the engine a new remediation. Order matters: the exit
// code rule must run before plain integers would be touched, and only the
// listed shapes are abstracted so the template stays close to the original
// message.
var generalizers = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`[0-9]+\.[0-9]+`), "{value}"},
	{regexp.MustCompile(`exit code [0-9]+`), "exit code {code}"},
	{regexp.MustCompile(`tx-[0-9]+`), "{txid}"},
}

// Generalize derives a reusable issue template from a concrete incident
// message by abstracting decimal readings, exit codes and transaction IDs.
// Messages with none of those shapes come back unchanged and match only
// their exact text.
func Generalize(message string) string {
	out := message
	for _, g := range generalizers {
		out = g.re.ReplaceAllString(out, g.replacement)
	}
	return out
}
