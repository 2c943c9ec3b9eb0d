package truth

import "strings"

// Label is the normalized three-way classification of a source address.
type Label string

const (
	LabelMalicious Label = "malicious"
	LabelBenign    Label = "benign"
	LabelUnknown   Label = "unknown"
)

// Normalize maps a raw ground-truth tag onto the three-way scheme. Matching
// is case-insensitive substring: a tag mentioning ATTACK is malicious even
// when it also mentions UNKNOWN; a tag mentioning UNKNOWN is unknown;
// everything else, the empty tag included, is benign.
func Normalize(raw string) Label {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "ATTACK"):
		return LabelMalicious
	case strings.Contains(upper, "UNKNOWN"):
		return LabelUnknown
	default:
		return LabelBenign
	}
}
