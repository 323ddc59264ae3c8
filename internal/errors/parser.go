package errors

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedError is a diagnostic extracted from compiler output.
type ParsedError struct {
	Kind    string `json:"kind"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
	Raw     string `json:"raw"`
}

// ErrorParser recognises the diagnostics printed by lessc and by tools
// reporting file:line:column locations.
type ErrorParser struct {
	patterns []errorPattern
}

type errorPattern struct {
	regex       *regexp.Regexp
	kind        string
	parseFields func(matches []string) (file string, line int, column int, message string)
}

// NewErrorParser creates a new error parser
func NewErrorParser() *ErrorParser {
	return &ErrorParser{patterns: buildPatterns()}
}

// ParseError parses compiler output into structured diagnostics
func (ep *ErrorParser) ParseError(output string) []*ParsedError {
	var parsed []*ParsedError

	lines := strings.Split(output, "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := ep.tryParse(line); err != nil {
			parsed = append(parsed, err)
		}
	}

	return parsed
}

// First returns the first diagnostic in output, or nil.
func (ep *ErrorParser) First(output string) *ParsedError {
	parsed := ep.ParseError(output)
	if len(parsed) == 0 {
		return nil
	}
	return parsed[0]
}

func (ep *ErrorParser) tryParse(line string) *ParsedError {
	for _, pattern := range ep.patterns {
		matches := pattern.regex.FindStringSubmatch(line)
		if matches != nil {
			file, lineNum, column, message := pattern.parseFields(matches)

			return &ParsedError{
				Kind:    pattern.kind,
				File:    file,
				Line:    lineNum,
				Column:  column,
				Message: message,
				Raw:     line,
			}
		}
	}
	return nil
}

func buildPatterns() []errorPattern {
	return []errorPattern{
		{
			// ParseError: Unrecognised input in /src/less/style.less on line 3, column 5:
			regex: regexp.MustCompile(`(\w*Error): (.+?) in (\S+) on line (\d+), column (\d+)`),
			kind:  "less",
			parseFields: func(matches []string) (string, int, int, string) {
				line, _ := strconv.Atoi(matches[4])
				column, _ := strconv.Atoi(matches[5])
				file := matches[3]
				if file == "-" {
					file = ""
				}
				return file, line, column, matches[1] + ": " + matches[2]
			},
		},
		{
			regex: regexp.MustCompile(`^(.+?):(\d+):(\d+): (.+)$`),
			kind:  "location",
			parseFields: func(matches []string) (string, int, int, string) {
				line, _ := strconv.Atoi(matches[2])
				column, _ := strconv.Atoi(matches[3])
				return matches[1], line, column, matches[4]
			},
		},
	}
}
