package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)
var nonAlnumRegex = regexp.MustCompile(`[^0-9a-zA-Z]`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// NormalizeCode cleans up OCR output for a captcha answer: anything
// that is not a letter or digit is dropped and the rest is lowercased.
func NormalizeCode(code string) string {
	code = nonAlnumRegex.ReplaceAllString(code, "")
	return strings.ToLower(code)
}
