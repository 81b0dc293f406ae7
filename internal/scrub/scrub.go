// Package scrub normalizes generated coverage reports before they are
// compared against reference files. Each format has its own scrubber that
// removes volatile content such as timestamps, tool versions, carriage
// returns and platform path separators, and stabilizes floating point
// rendering.
package scrub

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Scrubber normalizes report content prior to comparison. Scrubbers are
// pure; the same function is applied to generated and reference content.
type Scrubber func(contents string) string

var (
	reDecimal       = regexp.MustCompile(`\d+\.\d+`)
	reTxtWhitespace = regexp.MustCompile(`(?m)[ ]+$`)

	reXMLTimestamp    = regexp.MustCompile(`(timestamp)="[^"]*"`)
	reXMLGcovrVersion = regexp.MustCompile(`version="gcovr [^"]+"`)

	reHTMLAttrs         = regexp.MustCompile(`((timestamp)|(version))="[^"]*"`)
	reHTMLFooterVersion = regexp.MustCompile(`(Generated by: <a [^>]+>GCOVR \(Version) (?:3|4)\.[\w.-]+(\)</a>)`)
	reHTMLHeaderDate    = regexp.MustCompile(`(<td)>\d\d\d\d-\d\d-\d\d \d\d:\d\d:\d\d<(/td>)`)
)

// roundDecimal renders a matched decimal rounded to 5 places, in the
// shortest form that keeps a decimal point.
func roundDecimal(match string) string {
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return match
	}
	out := strconv.FormatFloat(math.Round(f*1e5)/1e5, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

// Txt strips trailing spaces from every line.
func Txt(contents string) string {
	return reTxtWhitespace.ReplaceAllString(contents, "")
}

// CSV drops carriage returns, collapses blank lines and normalizes
// Windows path separators.
func CSV(contents string) string {
	contents = strings.ReplaceAll(contents, "\r", "")
	contents = strings.ReplaceAll(contents, "\n\n", "\n")
	contents = strings.ReplaceAll(contents, `\`, "/")
	return contents
}

// XML rounds decimals to 5 places and blanks the timestamp and gcovr
// version attributes. It is shared by the xml and sonarqube formats.
func XML(contents string) string {
	contents = reDecimal.ReplaceAllStringFunc(contents, roundDecimal)
	contents = reXMLTimestamp.ReplaceAllString(contents, `$1=""`)
	contents = reXMLGcovrVersion.ReplaceAllString(contents, `version=""`)
	contents = strings.ReplaceAll(contents, "\r", "")
	return contents
}

// HTML blanks timestamp and version attributes, pins the footer version
// and the header date, and normalizes Windows path separators.
func HTML(contents string) string {
	contents = reHTMLAttrs.ReplaceAllString(contents, `$1=""`)
	contents = reHTMLFooterVersion.ReplaceAllString(contents, `$1 4.x$2`)
	contents = reHTMLHeaderDate.ReplaceAllString(contents, `$1>0000-00-00 00:00:00<$2`)
	contents = strings.ReplaceAll(contents, "\r", "")
	contents = strings.ReplaceAll(contents, `\`, "/")
	return contents
}

// JSON is the identity scrubber; gcovr's JSON output is already stable.
func JSON(contents string) string {
	return contents
}
