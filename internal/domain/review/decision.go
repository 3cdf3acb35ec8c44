package review

import "strings"

// OverrideMarker prefixes a reviewer comment that names an explicit label.
// Example: "manual classify: important".
const OverrideMarker = "manual classify:"

// DecisionKind tags the outcome of parsing a reviewer's response.
type DecisionKind int

const (
	// DecisionApproved means the reviewer accepted the proposed label.
	DecisionApproved DecisionKind = iota
	// DecisionOverridden means the comment named a valid replacement label.
	DecisionOverridden
	// DecisionUnparsed means no explicit label could be derived; callers
	// fall back to DefaultLabel and keep the raw comment.
	DecisionUnparsed
)

// Decision is the parsed intent of a reviewer callback.
type Decision struct {
	Kind  DecisionKind
	Label Label // set only for DecisionOverridden
}

// ParseDecision derives the reviewer's intent from a callback. Priority:
// an approval flag wins outright; otherwise the comment is matched against
// the override grammar; anything else is unparsed.
func ParseDecision(cb Callback) Decision {
	if cb.Approved {
		return Decision{Kind: DecisionApproved}
	}
	if label, ok := parseOverride(cb.Comment); ok {
		return Decision{Kind: DecisionOverridden, Label: label}
	}
	return Decision{Kind: DecisionUnparsed}
}

// parseOverride matches "<anything> manual classify: <label>" where label is
// in the closed vocabulary. The marker may appear anywhere in the comment;
// only the first token after it is considered.
func parseOverride(comment string) (Label, bool) {
	lower := strings.ToLower(comment)
	idx := strings.Index(lower, OverrideMarker)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimSpace(lower[idx+len(OverrideMarker):])
	if rest == "" {
		return "", false
	}
	token := rest
	if i := strings.IndexFunc(rest, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == ',' || r == '.' }); i >= 0 {
		token = rest[:i]
	}
	label := Label(token)
	if !ValidLabel(label) {
		return "", false
	}
	return label, true
}

// Resolve applies the decision policy to a request's proposed label and
// returns the final label plus the comment to record.
func Resolve(cb Callback, proposed Label) (Label, string) {
	d := ParseDecision(cb)
	switch d.Kind {
	case DecisionApproved:
		return proposed, cb.Comment
	case DecisionOverridden:
		return d.Label, cb.Comment
	default:
		return DefaultLabel, cb.Comment
	}
}
