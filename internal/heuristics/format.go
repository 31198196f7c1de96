package heuristics

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Format serializes a report as the labeled text block the narration prompt
// embeds. Group order is fixed.
func Format(r Report) string {
	lines := []string{
		fmt.Sprintf("MATERIAL: White: %d pts, Black: %d pts (balance: %+d)",
			r.Material.White, r.Material.Black, r.Material.Balance),
		fmt.Sprintf("CENTER: Center control — White: %d/4, Black: %d/4", r.Center.White, r.Center.Black),
		fmt.Sprintf("ACTIVITY: Piece activity (squares attacked) — White: %d, Black: %d",
			r.Activity.White, r.Activity.Black),
	}
	for _, c := range colors {
		ks := r.KingSafety.Get(c)
		status := "uncastled"
		if ks.Castled {
			status = "castled"
		}
		lines = append(lines, fmt.Sprintf("KING SAFETY (%s): %s, %d shield pawns, %d attackers",
			sideKey(c), status, ks.PawnShield, ks.Attackers))
	}
	for _, c := range colors {
		issues := r.Pawns.Get(c)
		if len(issues) == 0 {
			continue
		}
		parts := make([]string, len(issues))
		for i, is := range issues {
			parts[i] = is.String()
		}
		lines = append(lines, fmt.Sprintf("PAWN ISSUES (%s): %s", sideKey(c), strings.Join(parts, ", ")))
	}
	for _, c := range colors {
		if labels := r.Development.Get(c); len(labels) > 0 {
			lines = append(lines, fmt.Sprintf("UNDEVELOPED (%s): %s", sideKey(c), strings.Join(labels, ", ")))
		}
	}
	if motifs := r.Tactics.Motifs(); len(motifs) > 0 {
		lines = append(lines, "TACTICS: "+strings.Join(motifs, "; "))
	}
	return strings.Join(lines, "\n")
}

func (p PawnIssue) String() string {
	if p.Kind == PawnDoubled {
		return fmt.Sprintf("doubled pawns on %s-file", p.File)
	}
	return fmt.Sprintf("isolated pawn on %s-file", p.File)
}

// Motifs lists the tactical findings in report order.
func (t Tactics) Motifs() []string {
	var out []string
	if t.Check {
		out = append(out, "King is in CHECK")
	}
	for _, h := range t.Hanging {
		out = append(out, fmt.Sprintf("HANGING: %s on %s is attacked but undefended", h.Piece, h.Square))
	}
	return out
}

func sideKey(c nchess.Color) string {
	if c == nchess.White {
		return "white"
	}
	return "black"
}
