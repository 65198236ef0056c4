package evaluate

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/contacts-cli/internal/model"
)

// Defaults for labels missing from the reply.
const (
	DefaultScore       = 0
	DefaultTriState    = "Incierto"
	DefaultExplanation = "Sin explicación"
)

var (
	reScore       = regexp.MustCompile(`SCORE:\s*(\d+)`)
	reEmployer    = regexp.MustCompile(`EMPRESA_ACTUAL:\s*([^\n]+)`)
	reFinanceRole = regexp.MustCompile(`ROL_FINANZAS:\s*([^\n]+)`)
	reExplanation = regexp.MustCompile(`EXPLICACION:\s*([^\n]+)`)
)

// Decode extracts the four labeled fields from an AI reply. It never fails:
// missing labels take their defaults and the result's Confidence records how
// many were found. A reply with no recognizable label is Invalid.
func Decode(text string) model.Evaluation {
	found := 0

	score := DefaultScore
	if m := reScore.FindStringSubmatch(text); m != nil {
		found++
		if n, err := strconv.Atoi(m[1]); err == nil {
			score = clampScore(n)
		}
	}

	employer := DefaultTriState
	if m := reEmployer.FindStringSubmatch(text); m != nil {
		found++
		employer = strings.TrimSpace(m[1])
	}

	finance := DefaultTriState
	if m := reFinanceRole.FindStringSubmatch(text); m != nil {
		found++
		finance = strings.TrimSpace(m[1])
	}

	explanation := DefaultExplanation
	if m := reExplanation.FindStringSubmatch(text); m != nil {
		found++
		if e := strings.TrimSpace(m[1]); e != "" {
			explanation = e
		}
	}

	ev := model.Evaluation{
		Score:             score,
		Category:          model.CategoryForScore(score),
		CurrentlyEmployed: ParseTriState(employer),
		FinanceRole:       ParseTriState(finance),
		Explanation:       explanation,
	}

	switch found {
	case 4:
		ev.Confidence = model.ConfidenceFull
	case 0:
		ev.Confidence = model.ConfidenceUnparsed
		ev.Category = model.CategoryInvalid
	default:
		ev.Confidence = model.ConfidencePartial
	}
	return ev
}

// ParseTriState folds case and accents and reads the leading word:
// "Sí", "si", "Yes" are yes; "No" is no; anything else is unknown.
func ParseTriState(s string) model.TriState {
	word := firstWord(fold(s))
	switch word {
	case "si", "yes", "y", "true":
		return model.TriYes
	case "no", "n", "false":
		return model.TriNo
	default:
		return model.TriUnknown
	}
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

func firstWord(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		return s
	}
	return s[:end]
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}
