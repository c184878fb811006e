package services

import (
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/techprep/session-service/internal/models"
)

// ===== EVALUATORS =====

// EvaluateSingleChoice is correct only for exactly one selected option that is flagged correct
func EvaluateSingleChoice(question *models.Question, selected []uint) bool {
	if len(selected) != 1 {
		return false
	}
	opt, ok := question.OptionByID(selected[0])
	return ok && opt.IsCorrect
}

// EvaluateMultiChoice compares the selection with the correct options as sets
func EvaluateMultiChoice(question *models.Question, selected []uint) bool {
	return slices.Equal(normalizeOptionIDs(selected), normalizeOptionIDs(question.CorrectOptionIDs()))
}

// EvaluateWritten scores free text against the official answer.
// The match percent is the better of edit similarity and official-token coverage.
func EvaluateWritten(question *models.Question, submitted string, threshold float64) (float64, bool) {
	matchPercent := writtenMatchPercent(question.OfficialAnswer, submitted)
	return matchPercent, matchPercent > 0 && matchPercent >= threshold
}

func writtenMatchPercent(official, submitted string) float64 {
	official = normalizeText(official)
	submitted = normalizeText(submitted)
	if official == "" || submitted == "" {
		return 0
	}
	if official == submitted {
		return 100
	}

	score := math.Max(editSimilarity(official, submitted), tokenCoverage(official, submitted))
	return round2(score * 100)
}

// ===== TEXT HELPERS =====

// normalizeText lowercases, trims and collapses runs of whitespace
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func editSimilarity(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshteinDistance(a, b))/float64(maxLen)
}

// tokenCoverage is the share of official tokens that appear in the submission
func tokenCoverage(official, submitted string) float64 {
	want := tokenize(official)
	if len(want) == 0 {
		return 0
	}

	have := make(map[string]bool)
	for _, tok := range tokenize(submitted) {
		have[tok] = true
	}

	found := 0
	for _, tok := range want {
		if have[tok] {
			found++
		}
	}
	return float64(found) / float64(len(want))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// levenshteinDistance works on runes so accented answers are not over-penalised
func levenshteinDistance(s1, s2 string) int {
	a, b := []rune(s1), []rune(s2)
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// ===== NUMERIC HELPERS =====

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

// normalizeOptionIDs returns a sorted copy without duplicates
func normalizeOptionIDs(ids []uint) []uint {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
