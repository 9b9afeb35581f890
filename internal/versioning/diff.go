package versioning

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// diffContext is the number of unchanged lines around each hunk.
const diffContext = 3

// UnifiedDiff returns a unified patch from prev to next labelled with the
// stream sequence numbers of both versions. Identical contents yield "".
func UnifiedDiff(prev, next string, prevSeq, nextSeq int) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(prev),
		B:        difflib.SplitLines(next),
		FromFile: fmt.Sprintf("v%d", prevSeq),
		ToFile:   fmt.Sprintf("v%d", nextSeq),
		Context:  diffContext,
	})
}

// GenerateDiff renders a line diff for previews: every line of both inputs
// appears once, prefixed with "+" (added), "-" (removed) or " " (kept).
func GenerateDiff(oldContent, newContent string) string {
	a := splitDisplayLines(oldContent)
	b := splitDisplayLines(newContent)

	var out []string
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'e':
			for _, line := range a[op.I1:op.I2] {
				out = append(out, " "+line)
			}
		case 'd':
			for _, line := range a[op.I1:op.I2] {
				out = append(out, "-"+line)
			}
		case 'i':
			for _, line := range b[op.J1:op.J2] {
				out = append(out, "+"+line)
			}
		case 'r':
			for _, line := range a[op.I1:op.I2] {
				out = append(out, "-"+line)
			}
			for _, line := range b[op.J1:op.J2] {
				out = append(out, "+"+line)
			}
		}
	}
	return strings.Join(out, "\n")
}

// splitDisplayLines treats empty content as zero lines and ignores the
// terminating newline of the last line.
func splitDisplayLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}
