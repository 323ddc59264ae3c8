// Package validation rejects configured commands and request input that
// could be used for command injection.
package validation

import (
	"fmt"
	"strings"
)

// shellChars are rejected in executable names. Commands never go through a
// shell, so a name containing one is a misconfiguration.
var shellChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\\", "\"", "'"}

// ValidateCommand validates a configured command such as "lessc" or
// "npx lessc --strict-math=on". Every word is checked.
func ValidateCommand(command string) error {
	words := strings.Fields(command)
	if len(words) == 0 {
		return fmt.Errorf("command cannot be empty")
	}

	for _, word := range words {
		for _, char := range shellChars {
			if strings.Contains(word, char) {
				return fmt.Errorf("command %q contains dangerous character: %s", command, char)
			}
		}
	}

	if exe := words[0]; strings.Contains(exe, "..") {
		return fmt.Errorf("command %q contains path traversal", command)
	}

	return nil
}

// ValidateArgument rejects arguments carrying NUL or other control bytes.
func ValidateArgument(arg string) error {
	for _, r := range arg {
		if r == 0 {
			return fmt.Errorf("argument contains a NUL byte")
		}
		if r < 32 && r != '\t' {
			return fmt.Errorf("argument contains control character %q", r)
		}
	}
	return nil
}

// SanitizeInput removes NUL bytes and control characters except common
// whitespace.
func SanitizeInput(input string) string {
	var sanitized strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' || r == '\r' {
			sanitized.WriteRune(r)
		}
	}
	return sanitized.String()
}
