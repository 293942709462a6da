package provider

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxDisplayArg is the longest argument shown verbatim in a display command.
const maxDisplayArg = 50

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// displayCommand renders binary and args for audit logs. Arguments carrying
// a long prompt are replaced by their length; other long arguments are
// truncated.
func displayCommand(binary string, args []string, prompt string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(binary))
	for _, arg := range args {
		parts = append(parts, shellQuote(redactArg(arg, prompt)))
	}
	return strings.Join(parts, " ")
}

func redactArg(arg, prompt string) string {
	if n := utf8.RuneCountInString(prompt); n > maxDisplayArg && strings.Contains(arg, prompt) {
		return fmt.Sprintf("<prompt: %d chars>", n)
	}
	if utf8.RuneCountInString(arg) > maxDisplayArg {
		return string([]rune(arg)[:maxDisplayArg]) + "..."
	}
	return arg
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
