// Package fuzzy implementa as métricas de similaridade usadas para casar
// mensagens livres com as perguntas cadastradas. Todas as notas ficam em [0,100].
package fuzzy

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Scorer calcula a similaridade entre duas strings.
type Scorer func(a, b string) int

const (
	ScorerTokenSet  = "token_set"
	ScorerTokenSort = "token_sort"
	ScorerWeighted  = "weighted"
)

var folder = cases.Fold()

// Lookup devolve o Scorer registrado com o nome informado.
func Lookup(name string) (Scorer, error) {
	switch name {
	case "", ScorerTokenSet:
		return TokenSetRatio, nil
	case ScorerTokenSort:
		return TokenSortRatio, nil
	case ScorerWeighted:
		return WeightedRatio, nil
	default:
		return nil, fmt.Errorf("scorer desconhecido: %q", name)
	}
}

// Normalize aplica NFKC, case folding, troca tudo que não é letra ou dígito
// por espaço e colapsa os espaços.
func Normalize(s string) string {
	s = folder.String(norm.NFKC.String(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Ratio é a razão de edição entre duas strings já normalizadas.
func Ratio(a, b string) int {
	if a == b {
		if a == "" {
			return 0
		}
		return 100
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(dist)/float64(longest))))
}

// TokenSortRatio compara as strings com os tokens ordenados.
func TokenSortRatio(a, b string) int {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	sort.Strings(ta)
	sort.Strings(tb)
	return Ratio(strings.Join(ta, " "), strings.Join(tb, " "))
}

// TokenSetRatio compara a interseção dos conjuntos de tokens com cada lado
// acrescido das suas diferenças, e fica com a melhor nota.
func TokenSetRatio(a, b string) int {
	sa, sb := set(tokens(a)), set(tokens(b))
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for t := range sa {
		if _, ok := sb[t]; ok {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range sb {
		if _, ok := sa[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	t0 := strings.Join(common, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(onlyA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(onlyB, " "))

	best := Ratio(t1, t2)
	if t0 != "" {
		best = max(best, Ratio(t0, t1), Ratio(t0, t2))
	}
	return best
}

// WeightedRatio é a média entre TokenSetRatio e TokenSortRatio.
func WeightedRatio(a, b string) int {
	return int(math.Round(float64(TokenSetRatio(a, b)+TokenSortRatio(a, b)) / 2))
}

func tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

func set(ts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		out[t] = struct{}{}
	}
	return out
}
