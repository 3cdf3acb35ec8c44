package review

import "testing"

func TestParseDecisionApproved(t *testing.T) {
	d := ParseDecision(Callback{CorrelationID: "r1", Approved: true, Comment: "looks right"})
	if d.Kind != DecisionApproved {
		t.Fatalf("expected approved, got %v", d.Kind)
	}
}

func TestParseDecisionOverride(t *testing.T) {
	cases := []struct {
		comment string
		label   Label
	}{
		{"manual classify: important", LabelImportant},
		{"Manual Classify: SPAM", LabelSpam},
		{"wrong call here, manual classify: newsletter please", LabelNewsletter},
		{"manual classify: promotion.", LabelPromotion},
	}
	for _, tc := range cases {
		d := ParseDecision(Callback{Comment: tc.comment})
		if d.Kind != DecisionOverridden {
			t.Fatalf("comment %q: expected override, got %v", tc.comment, d.Kind)
		}
		if d.Label != tc.label {
			t.Fatalf("comment %q: expected label %s, got %s", tc.comment, tc.label, d.Label)
		}
	}
}

func TestParseDecisionUnparsed(t *testing.T) {
	cases := []string{
		"",
		"not sure about this one",
		"manual classify:",
		"manual classify: urgent", // not in vocabulary
		"classify: spam",          // missing marker
	}
	for _, comment := range cases {
		d := ParseDecision(Callback{Comment: comment})
		if d.Kind != DecisionUnparsed {
			t.Fatalf("comment %q: expected unparsed, got %v", comment, d.Kind)
		}
	}
}

func TestResolveApprovalWins(t *testing.T) {
	// An approval flag beats an override marker in the comment.
	label, comment := Resolve(Callback{Approved: true, Comment: "manual classify: spam"}, LabelImportant)
	if label != LabelImportant {
		t.Fatalf("expected proposed label to win on approval, got %s", label)
	}
	if comment != "manual classify: spam" {
		t.Fatalf("expected comment preserved, got %q", comment)
	}
}

func TestResolveFallback(t *testing.T) {
	label, comment := Resolve(Callback{Comment: "escalate to legal"}, LabelSpam)
	if label != DefaultLabel {
		t.Fatalf("expected default label, got %s", label)
	}
	if comment != "escalate to legal" {
		t.Fatalf("expected comment stored verbatim, got %q", comment)
	}
}
