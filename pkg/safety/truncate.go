// SPDX-License-Identifier: Apache-2.0

package safety

// TruncationMarker is appended when output is cut at the configured cap.
const TruncationMarker = "\n[OUTPUT TRUNCATED]"

// Truncate caps s at max runes, appending the truncation marker when content
// was dropped. Non-positive max disables the cap.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + TruncationMarker
}
