package release

import (
	"regexp"
	"strings"
)

// templateSeparator separates segments of a template path reported by the
// update service. It is always a backslash regardless of the local OS.
const templateSeparator = `\`

// templateVersionSeparator separates the parts of a version inside a template path.
const templateVersionSeparator = "_"

// templateVersionPattern matches a version segment such as "8_3_20_1".
var templateVersionPattern = regexp.MustCompile(`^\d+_\d+_\d+_\d+$`)

// ExtractFromTemplatePath returns the version embedded in a template path
// like `1c\Accounting\3_0_150_25\data`. Segments are scanned from the last to
// the first and the first match wins. The result is in canonical dotted form,
// so "3_0_150_025" becomes "3.0.150.25" and matches the scanner's ordering.
func ExtractFromTemplatePath(path string) (string, bool) {
	segments := strings.Split(path, templateSeparator)

	for i := len(segments) - 1; i >= 0; i-- {
		segment := segments[i]
		if !templateVersionPattern.MatchString(segment) {
			continue
		}

		if v, ok := parseSeparated(segment, templateVersionSeparator); ok {
			return v.String(), true
		}

		// Parts too large for uint64 are kept verbatim.
		return strings.ReplaceAll(segment, templateVersionSeparator, "."), true
	}

	return "", false
}
