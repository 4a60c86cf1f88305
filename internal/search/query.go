// Package search implements the similarity search pipeline: query parsing,
// per-signal scoring, score fusion, and the search job engine.
package search

import (
	"regexp"
	"strings"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

// ParsedQuery is the structured form of a free-text query. Every field except
// CleanedText may be empty.
type ParsedQuery struct {
	Type       *models.ObjectType
	Color      string
	UpperColor string
	LowerColor string
	Plate      string
	CleanedText string
}

func (q *ParsedQuery) HasColor() bool {
	return q.Color != "" || q.UpperColor != "" || q.LowerColor != ""
}

var personKeywords = []string{
	"person", "people", "human", "man", "woman", "boy", "girl", "pedestrian",
}

var transportKeywords = []string{
	"car", "cars", "auto", "vehicle", "truck", "bus", "van", "motorcycle", "transport",
}

var upperClothesKeywords = []string{
	"jacket", "shirt", "t-shirt", "hoodie", "coat", "sweater", "vest", "top",
}

var lowerClothesKeywords = []string{
	"pants", "jeans", "trousers", "skirt", "shorts", "bottom",
}

// colorPatterns maps a canonical color to the substrings that select it.
var colorPatterns = map[string][]string{
	"black":  {"black"},
	"white":  {"white"},
	"gray":   {"gray", "grey"},
	"red":    {"red", "maroon"},
	"orange": {"orange"},
	"yellow": {"yellow"},
	"green":  {"green"},
	"blue":   {"blue", "navy"},
	"brown":  {"brown"},
	"purple": {"purple", "violet"},
	"pink":   {"pink"},
}

// Registration plates like "A123BC77", with optional spaces or dashes between
// the groups.
var plateRegex = regexp.MustCompile(`(?i)\b([A-Z])[ -]?(\d{3})[ -]?([A-Z]{2})[ -]?(\d{2,3})\b`)

// ParseQuery extracts the object type, colors, and plate from a text query.
// The remaining text feeds the embedding encoder.
func ParseQuery(text string) ParsedQuery {
	normalized := normalizeText(text)

	plate, withoutPlate := extractPlate(normalized)
	objType := detectType(normalized)
	colors, tokens := detectColors(normalized)

	upper, lower, generic := splitColorsByClothes(colors, tokens, objType)

	color := ""
	if upper == "" && lower == "" {
		color = generic
	}

	return ParsedQuery{
		Type:        objType,
		Color:       color,
		UpperColor:  upper,
		LowerColor:  lower,
		Plate:       plate,
		CleanedText: strings.TrimSpace(withoutPlate),
	}
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(text))), " ")
}

func extractPlate(text string) (plate, remainder string) {
	loc := plateRegex.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", text
	}
	groups := plateRegex.FindStringSubmatch(text)
	normalized := strings.ToUpper(groups[1] + groups[2] + groups[3] + groups[4])
	remainder = strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return normalized, remainder
}

func detectType(text string) *models.ObjectType {
	personHits := countKeywordHits(text, personKeywords)
	transportHits := countKeywordHits(text, transportKeywords)

	switch {
	case personHits == 0 && transportHits == 0:
		return nil
	case personHits > transportHits:
		t := models.ObjectPerson
		return &t
	case transportHits > personHits:
		t := models.ObjectTransport
		return &t
	default:
		return nil // ambiguous
	}
}

func countKeywordHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

type colorHit struct {
	tokenIdx int
	color    string
}

func detectColors(text string) ([]colorHit, []string) {
	tokens := strings.Split(text, " ")
	var found []colorHit
	for idx, token := range tokens {
		clean := strings.Trim(token, ",.!?;:")
		if color := matchColor(clean); color != "" {
			found = append(found, colorHit{tokenIdx: idx, color: color})
		}
	}
	return found, tokens
}

func matchColor(token string) string {
	for color, patterns := range colorPatterns {
		for _, p := range patterns {
			if strings.Contains(token, p) {
				return color
			}
		}
	}
	return ""
}

// splitColorsByClothes attributes colors to upper/lower clothing for PERSON
// queries by picking the color nearest to each clothing keyword. Other query
// types take the first color as the generic one.
func splitColorsByClothes(colors []colorHit, tokens []string, objType *models.ObjectType) (upper, lower, generic string) {
	if objType == nil || *objType != models.ObjectPerson || len(colors) == 0 {
		if len(colors) > 0 {
			generic = colors[0].color
		}
		return "", "", generic
	}

	for idx, token := range tokens {
		clean := strings.Trim(token, ",.!?;:")
		if upper == "" && tokenMatchesAny(clean, upperClothesKeywords) {
			upper = closestColor(colors, idx)
		}
		if lower == "" && tokenMatchesAny(clean, lowerClothesKeywords) {
			lower = closestColor(colors, idx)
		}
	}

	if upper == "" && lower == "" {
		generic = colors[0].color
	}
	return upper, lower, generic
}

func tokenMatchesAny(token string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(token, p) {
			return true
		}
	}
	return false
}

const maxColorDistance = 3

func closestColor(colors []colorHit, index int) string {
	best := ""
	bestDistance := maxColorDistance + 1
	for _, hit := range colors {
		distance := hit.tokenIdx - index
		if distance < 0 {
			distance = -distance
		}
		if distance <= maxColorDistance && distance < bestDistance {
			best = hit.color
			bestDistance = distance
		}
	}
	return best
}
