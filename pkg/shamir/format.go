package shamir

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FormatForDisplay renders a share in the external transcription format:
// "SHARE-<i>: XXXXXXXX-XXXXXXXX-..." with each group 8 hex characters,
// for a custodian to copy down during a one-time ceremony.
func FormatForDisplay(s Share) string {
	var groups []string
	v := strings.ToUpper(s.Value)
	for i := 0; i < len(v); i += 8 {
		end := i + 8
		if end > len(v) {
			end = len(v)
		}
		groups = append(groups, v[i:end])
	}
	return fmt.Sprintf("SHARE-%d: %s", s.Index, strings.Join(groups, "-"))
}

var shareInputPattern = regexp.MustCompile(`(?i)^\s*(?:SHARE-)?(\d+)\s*:\s*([0-9A-F\-]+)\s*$`)

// ParseShareInput accepts "SHARE-i: v", "i: v", case-insensitive, with or
// without dashes inside v, and returns the normalised Share.
func ParseShareInput(line string) (Share, error) {
	m := shareInputPattern.FindStringSubmatch(line)
	if m == nil {
		return Share{}, fmt.Errorf("shamir: %q does not match the share input format", line)
	}
	index, err := strconv.Atoi(m[1])
	if err != nil {
		return Share{}, fmt.Errorf("shamir: invalid share index in %q: %w", line, err)
	}
	value := strings.ToUpper(strings.ReplaceAll(m[2], "-", ""))
	return Share{Index: index, Value: value}, nil
}
