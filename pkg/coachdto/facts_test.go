package coachdto

import "testing"

func TestFormatTopLines(t *testing.T) {
	lines := []Line{
		{Move: "e2e4", SAN: "e4", ScoreCP: 35, Variation: []string{"e4", "e5", "Nf3"}},
		{Move: "d1h5", SAN: "Qh5", ScoreCP: 9998, Mate: 2, IsMate: true, Variation: []string{"Qh5"}, TruncatedAt: "h5f8"},
	}
	want := "  1. e4 (35 cp) — line: e4 → e5 → Nf3\n  2. Qh5 (mate in 2) — line: Qh5 (engine line cut at h5f8)"
	if got := FormatTopLines(lines); got != want {
		t.Fatalf("FormatTopLines mismatch:\n got %q\nwant %q", got, want)
	}
	if FormatTopLines(nil) != "" {
		t.Fatalf("no lines should render empty")
	}
}

func TestOpeningString(t *testing.T) {
	var o *Opening
	if o.String() != "" {
		t.Fatalf("nil opening should render empty")
	}
	o = &Opening{Code: "C20", Title: "King's Pawn Game"}
	if o.String() != "C20 King's Pawn Game" {
		t.Fatalf("unexpected opening label %q", o.String())
	}
}

func TestDomainErrorMessage(t *testing.T) {
	if (DomainError{Code: "engine_unavailable"}).Error() != "engine_unavailable" {
		t.Fatalf("code should be used when message is empty")
	}
	if (DomainError{}).Error() != "coach service error" {
		t.Fatalf("unexpected default message")
	}
}
