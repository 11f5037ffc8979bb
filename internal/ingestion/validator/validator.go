// Package validator checks training requests before they reach the model or
// the training topic.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion"
)

// MaxStringLength bounds a single training string, in bytes.
const MaxStringLength = 4096

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateTrainRequest checks that the request carries between one and
// maxStrings strings, each valid UTF-8 and at most MaxStringLength bytes.
// Strings without tokens are allowed; training skips them.
func ValidateTrainRequest(req *ingestion.TrainRequest, maxStrings int) error {
	errs := make(map[string]string)
	switch {
	case len(req.Strings) == 0:
		errs["strings"] = "at least one string is required"
	case maxStrings > 0 && len(req.Strings) > maxStrings:
		errs["strings"] = fmt.Sprintf("at most %d strings per request, got %d", maxStrings, len(req.Strings))
	}
	for i, s := range req.Strings {
		field := fmt.Sprintf("strings[%d]", i)
		if len(s) > MaxStringLength {
			errs[field] = fmt.Sprintf("must be at most %d bytes", MaxStringLength)
		} else if !utf8.ValidString(s) {
			errs[field] = "must be valid UTF-8"
		}
		if len(errs) >= 10 {
			break
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
