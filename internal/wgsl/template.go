// Package wgsl expands kernel source templates and reflects the resource
// declarations and entry point of the resulting WGSL.
package wgsl

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/born-ml/gpurt/internal/tensor"
)

// Placeholders recognised in kernel templates.
const (
	TokenPrecision     = "{{precision}}"
	TokenWorkgroupSize = "{{workgroupSize}}"
)

// ErrUnresolvedToken is returned when a template still contains a {{...}}
// token after expansion.
var ErrUnresolvedToken = errors.New("unresolved template token")

var (
	knownTokens  = []string{TokenPrecision, TokenWorkgroupSize}
	leftoverExpr = regexp.MustCompile(`\{\{[^}]*\}\}`)
	enableF16    = regexp.MustCompile(`(?m)^\s*enable\s+f16\s*;`)
)

// Expand substitutes the precision and workgroup size placeholders in tmpl
// and checks that no other placeholder is left behind. F16 kernels get the
// `enable f16;` directive prepended when the template does not declare it.
func Expand(tmpl string, precision tensor.NumType, workgroupSize int) (string, error) {
	if workgroupSize <= 0 {
		return "", fmt.Errorf("workgroup size must be > 0, got %d", workgroupSize)
	}

	out := strings.NewReplacer(
		TokenPrecision, precision.String(),
		TokenWorkgroupSize, strconv.Itoa(workgroupSize),
	).Replace(tmpl)

	if tok := leftoverExpr.FindString(out); tok != "" {
		if hint := closestToken(tok); hint != "" {
			return "", fmt.Errorf("%w: %s (did you mean %s?)", ErrUnresolvedToken, tok, hint)
		}
		return "", fmt.Errorf("%w: %s", ErrUnresolvedToken, tok)
	}
	if strings.Contains(out, "{{") || strings.Contains(out, "}}") {
		return "", fmt.Errorf("%w: unbalanced braces", ErrUnresolvedToken)
	}

	if precision == tensor.F16 && !enableF16.MatchString(out) {
		out = "enable f16;\n" + out
	}
	return out, nil
}

// closestToken suggests a known placeholder for a misspelled one.
func closestToken(tok string) string {
	best, score := "", len(tok)
	for _, known := range knownTokens {
		if d := levenshtein.ComputeDistance(tok, known); d < score {
			best, score = known, d
		}
	}
	// Anything further than a few edits is a different name, not a typo.
	if score > 4 {
		return ""
	}
	return best
}
