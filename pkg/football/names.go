package football

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// clubAffixes are dropped when comparing names across providers.
var clubAffixes = map[string]bool{
	"fc": true, "cf": true, "afc": true, "sc": true, "ac": true, "ssc": true,
	"cd": true, "ud": true, "rc": true, "club": true, "de": true,
}

// nameAliases maps common short forms to a canonical normalized name.
var nameAliases = map[string]string{
	"man utd":                "manchester united",
	"man united":             "manchester united",
	"man city":               "manchester city",
	"spurs":                  "tottenham hotspur",
	"tottenham":              "tottenham hotspur",
	"wolves":                 "wolverhampton wanderers",
	"newcastle":              "newcastle united",
	"brighton":               "brighton hove albion",
	"west ham":               "west ham united",
	"inter":                  "internazionale",
	"inter milan":            "internazionale",
	"atletico":               "atletico madrid",
	"atleti":                 "atletico madrid",
	"psg":                    "paris saint germain",
	"paris sg":               "paris saint germain",
	"bayern":                 "bayern munchen",
	"bayern munich":          "bayern munchen",
	"dortmund":               "borussia dortmund",
	"bvb":                    "borussia dortmund",
	"leverkusen":             "bayer leverkusen",
	"barca":                  "barcelona",
	"real":                   "real madrid",
	"juve":                   "juventus",
	"nottm forest":           "nottingham forest",
	"sheffield utd":          "sheffield united",
	"leicester":              "leicester city",
	"rb leipzig":             "leipzig",
	"rasenballsport leipzig": "leipzig",
}

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName lowercases, strips accents and punctuation, drops club
// affixes such as "FC" and resolves common aliases.
func NormalizeName(name string) string {
	folded, _, err := transform.String(accentStripper, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if !clubAffixes[w] && w != "and" {
			kept = append(kept, w)
		}
	}
	out := strings.Join(kept, " ")
	if out == "" {
		out = strings.Join(words, " ")
	}
	if alias, ok := nameAliases[out]; ok {
		return alias
	}
	return out
}

// SameTeam reports whether two provider names refer to the same club.
func SameTeam(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}

// MatchesQuery reports whether a provider's team name satisfies a user
// query: equal after normalization, or the query is a whole-word prefix.
func MatchesQuery(name, query string) bool {
	nn, nq := NormalizeName(name), NormalizeName(query)
	if nn == "" || nq == "" {
		return false
	}
	return nn == nq || strings.HasPrefix(nn, nq+" ")
}
