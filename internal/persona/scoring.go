package persona

import "math"

const (
	teamDiversityWeight  = 0.4
	teamSimilarityWeight = 0.6

	matchSocialWeight      = 0.5
	matchFantasyWeight     = 0.3
	matchAchievementWeight = 0.2

	// socialCeiling is the weight sum of two mutual primary/primary matches.
	socialCeiling = 8.0
)

// TeamBreakdown reports the terms that make up a team score.
type TeamBreakdown struct {
	Diversity  float64
	Similarity float64
	Score      float64
}

// MatchBreakdown reports the terms that make up a match score.
type MatchBreakdown struct {
	Social            float64
	Achievement       float64
	FantasyComplement float64
	Score             float64
}

// TeamScore rates a team on a 0-100 scale. Varied student personas and shared
// achievement personas raise the score. Teams of fewer than two members score 0.
func TeamScore(members [][]Assignment) float64 {
	return ScoreTeam(members).Score
}

// ScoreTeam is TeamScore with its intermediate terms.
func ScoreTeam(members [][]Assignment) TeamBreakdown {
	if len(members) < 2 {
		return TeamBreakdown{}
	}

	var students, achievements []string
	for _, member := range members {
		students = append(students, aliasesIn(member, CategoryStudent)...)
		achievements = append(achievements, aliasesIn(member, CategoryAchievement)...)
	}

	b := TeamBreakdown{
		Diversity:  diversity(students),
		Similarity: similarity(achievements),
	}
	b.Score = round2((b.Diversity*teamDiversityWeight + b.Similarity*teamSimilarityWeight) * 100)
	return b
}

// MatchScore rates two subjects on a 0-100 scale. Shared social personas and
// shared achievement personas raise the score while fantasy personas count for
// more the less they overlap. The result is symmetric in its arguments.
func MatchScore(a, b []Assignment) float64 {
	return ScoreMatch(a, b).Score
}

// ScoreMatch is MatchScore with its intermediate terms.
func ScoreMatch(a, b []Assignment) MatchBreakdown {
	if len(a) == 0 || len(b) == 0 {
		return MatchBreakdown{}
	}

	out := MatchBreakdown{
		Social:            socialOverlap(a, b),
		Achievement:       jaccard(aliasesIn(a, CategoryAchievement), aliasesIn(b, CategoryAchievement)),
		FantasyComplement: 1 - jaccard(aliasesIn(a, CategoryFantasy), aliasesIn(b, CategoryFantasy)),
	}
	out.Score = round2((out.Social*matchSocialWeight +
		out.FantasyComplement*matchFantasyWeight +
		out.Achievement*matchAchievementWeight) * 100)
	return out
}

func diversity(aliases []string) float64 {
	if len(aliases) == 0 {
		return 0
	}
	return float64(len(toSet(aliases))) / float64(len(aliases))
}

func similarity(aliases []string) float64 {
	if len(aliases) == 0 {
		return 0
	}
	counts := make(map[string]int, len(aliases))
	top := 0
	for _, alias := range aliases {
		counts[alias]++
		if counts[alias] > top {
			top = counts[alias]
		}
	}
	return float64(top) / float64(len(aliases))
}

// socialOverlap sums both sides' weights for every social alias they share.
// Integer summation keeps the result independent of argument order.
func socialOverlap(a, b []Assignment) float64 {
	left := socialWeights(a)
	right := socialWeights(b)

	total := 0
	for alias, w := range left {
		if rw, ok := right[alias]; ok {
			total += w + rw
		}
	}
	return math.Min(float64(total)/socialCeiling, 1)
}

func socialWeights(assignments []Assignment) map[string]int {
	out := make(map[string]int)
	for _, a := range assignments {
		if a.Category != CategorySocial {
			continue
		}
		if w := int(a.Weight); w > out[a.Alias] {
			out[a.Alias] = w
		}
	}
	return out
}

func jaccard(a, b []string) float64 {
	left := toSet(a)
	right := toSet(b)

	intersection := 0
	for alias := range left {
		if _, ok := right[alias]; ok {
			intersection++
		}
	}
	union := len(left) + len(right) - intersection
	if union < 1 {
		union = 1
	}
	return float64(intersection) / float64(union)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
