package session

import (
	"strings"

	"github.com/codefionn/shkernel/internal/logger"
	"github.com/codefionn/shkernel/internal/syntax"
)

// Completeness values for is_complete_reply.
const (
	Complete   = "complete"
	Incomplete = "incomplete"
	Invalid    = "invalid"
)

var (
	blockOpeners = map[string]bool{"if": true, "case": true, "do": true, "{": true}
	blockClosers = map[string]bool{"fi": true, "esac": true, "done": true, "}": true}
	leadsCommand = map[string]bool{
		"if": true, "then": true, "elif": true, "else": true, "do": true,
		"while": true, "until": true, "{": true, "!": true, "time": true,
	}
)

// IsComplete guesses whether code is a complete shell input: quotes and
// parentheses are balanced, no line continuation is pending, and every
// if/case/do/{ block is closed. Incomplete input returns the indent to use
// for the next line. Input that looks complete but does not parse as bash
// is invalid.
func IsComplete(code string) (status string, indent string) {
	if strings.TrimSpace(code) == "" {
		return Complete, ""
	}
	if strings.HasSuffix(strings.TrimRight(code, " \t"), "\\") {
		return Incomplete, ""
	}

	var (
		quote     rune
		escape    bool
		comment   bool
		parens    int
		words     strings.Builder
		wordStart = true
	)
	for _, r := range code {
		switch {
		case comment:
			if r == '\n' {
				comment = false
				words.WriteString(" ; ")
				wordStart = true
			}
			continue
		case escape:
			escape = false
			continue
		case r == '\\' && quote != '\'':
			escape = true
			continue
		case quote != 0:
			if r == quote {
				quote = 0
			}
			continue
		case r == '\'' || r == '"' || r == '`':
			quote = r
			wordStart = false
			continue
		case r == '#' && wordStart:
			comment = true
			continue
		case r == '(':
			parens++
		case r == ')':
			// case patterns close a paren that was never opened
			if parens > 0 {
				parens--
			}
		}

		switch r {
		case ' ', '\t':
			words.WriteRune(' ')
			wordStart = true
		case '\n', ';', '(', ')', '&', '|':
			words.WriteString(" ; ")
			wordStart = true
		default:
			words.WriteRune(r)
			wordStart = false
		}
	}
	if quote != 0 || parens > 0 {
		return Incomplete, "  "
	}

	// keywords only count in command position: `echo done` closes nothing
	depth := 0
	command := true
	for _, w := range strings.Fields(words.String()) {
		switch {
		case w == ";":
			command = true
			continue
		case !command:
			continue
		case blockOpeners[w]:
			depth++
		case blockClosers[w]:
			depth--
			if depth < 0 {
				return Invalid, ""
			}
		}
		command = leadsCommand[w]
	}
	if depth > 0 {
		return Incomplete, strings.Repeat("  ", depth)
	}

	errs, err := syntax.Check(code)
	if err != nil {
		logger.Debug("is_complete: %v", err)
		return Complete, ""
	}
	if len(errs) > 0 {
		return Invalid, ""
	}
	return Complete, ""
}
