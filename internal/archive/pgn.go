package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/match"
)

// FromRecord converts a terminal session record into an archive row with PGN.
func FromRecord(rec match.Record) *domain.MatchRecord {
	out := &domain.MatchRecord{
		SessionID:  rec.ID,
		Mode:       string(rec.Mode),
		WhiteID:    rec.White,
		BlackID:    rec.Black,
		Difficulty: rec.Difficulty,
		MovesUCI:   append([]string{}, rec.MovesUCI...),
		MovesSAN:   append([]string{}, rec.MovesSAN...),
		WhiteTimer: rec.WhiteTimer,
		BlackTimer: rec.BlackTimer,
		StartedAt:  rec.StartedAt,
		EndedAt:    rec.EndedAt,
	}
	if out.EndedAt.IsZero() {
		out.EndedAt = rec.UpdatedAt
	}
	if d := out.EndedAt.Sub(out.StartedAt); d > 0 {
		out.Duration = d
	}
	if rec.Result != nil {
		out.ResultMethod = string(rec.Result.Kind)
		if rec.Result.Kind == match.ResultDraw && rec.Result.Method != "" {
			out.ResultMethod = rec.Result.Method
		}
		switch {
		case rec.Result.Winner != "":
			out.Result = string(rec.Result.Winner)
		case rec.Result.Kind != match.ResultAborted:
			out.Result = "draw"
		}
	}
	out.PGN = buildPGN(out, mapResultToPGN(out.Result))
	return out
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

func playerName(id, mode string) string {
	if strings.TrimSpace(id) == "" && mode == string(match.ModeComputer) {
		return "Computer"
	}
	return id
}

func buildPGN(m *domain.MatchRecord, pgnResult string) string {
	var b strings.Builder
	date := m.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Arena " + sanitizePGN(m.Mode) + "\"]\n")
	b.WriteString("[Site \"cheese-arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(playerName(m.WhiteID, m.Mode))))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(playerName(m.BlackID, m.Mode))))
	if code, title := classifyOpening(m.MovesUCI); code != "" {
		b.WriteString(fmt.Sprintf("[ECO \"%s\"]\n", sanitizePGN(code)))
		b.WriteString(fmt.Sprintf("[Opening \"%s\"]\n", sanitizePGN(title)))
	}
	if strings.TrimSpace(m.ResultMethod) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(m.ResultMethod)))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(m.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(m.MovesSAN[i])))
		if i+1 < len(m.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(m.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
