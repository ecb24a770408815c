package sentiment

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hoodpulse/internal/domain"
)

// Analyzer scores posts with the fixed lexicon. It is safe for concurrent use.
type Analyzer struct {
	clock clockwork.Clock
}

func NewAnalyzer(clock clockwork.Clock) *Analyzer {
	return &Analyzer{clock: clock}
}

// AnalyzePost scores one post. It returns domain.ErrEmptyPost for posts
// without any usable text.
func (a *Analyzer) AnalyzePost(post domain.Post) (domain.SentimentResult, error) {
	tokens := Tokenize(post.Text())
	if len(tokens) == 0 {
		return domain.SentimentResult{}, fmt.Errorf("post %q: %w", post.ID, domain.ErrEmptyPost)
	}

	scores := scoreTokens(tokens)
	return domain.SentimentResult{
		PostID:     post.ID,
		Source:     post.Source,
		Sentiment:  scores,
		Label:      domain.LabelFor(scores.CompoundScore),
		Aspects:    extractAspects(tokens),
		KeyPhrases: extractKeyPhrases(tokens, maxKeyPhrases),
	}, nil
}

// scoreTokens walks the tokens once. A negation flips the next
// negationWindow scorable tokens; an intensifier scales only the token right
// after it.
func scoreTokens(tokens []string) domain.SentimentScores {
	var pos, neg float64
	negated := 0
	intensified := false

	for _, tok := range tokens {
		if isNegation(tok) {
			negated = negationWindow
			continue
		}
		if has(intensifiers, tok) {
			intensified = true
			continue
		}

		value := polarity(tok)
		if negated > 0 {
			value = -value
			negated--
		}
		if intensified {
			value *= intensifierWeight
			intensified = false
		}

		switch {
		case value > 0:
			pos += value
		case value < 0:
			neg -= value
		}
	}

	scores := domain.SentimentScores{PositiveCount: pos, NegativeCount: neg}
	if total := pos + neg; total > 0 {
		scores.PositiveScore = pos / total
		scores.NegativeScore = neg / total
		scores.CompoundScore = (pos - neg) / total
	}
	return scores
}

func extractAspects(tokens []string) map[string]domain.AspectScore {
	out := make(map[string]domain.AspectScore)

	for i, tok := range tokens {
		for _, asp := range aspects {
			if !matchesAny(tok, asp.terms) {
				continue
			}

			lo := max(0, i-aspectWindow)
			hi := min(len(tokens), i+aspectWindow+1)
			window := tokens[lo:hi]

			var p, n float64
			negated := false
			for _, w := range window {
				switch {
				case isNegation(w):
					negated = true
				case has(positiveTerms, w):
					p++
				case has(negativeTerms, w):
					n++
				}
			}
			if negated {
				p, n = n, p
			}

			s := out[asp.name]
			s.Mentions++
			s.Positive += p
			s.Negative += n
			out[asp.name] = s
		}
	}

	for name, s := range out {
		s.Score = aspectScore(s.Positive, s.Negative)
		out[name] = s
	}
	return out
}

func matchesAny(token string, terms []string) bool {
	for _, term := range terms {
		if matchesTerm(token, term) {
			return true
		}
	}
	return false
}

func aspectScore(pos, neg float64) float64 {
	if total := pos + neg; total > 0 {
		return (pos - neg) / total
	}
	return 0
}

// phraseCounter counts strings and remembers first-appearance order for stable ranking.
type phraseCounter struct {
	counts map[string]int
	order  []string
}

func newPhraseCounter() *phraseCounter {
	return &phraseCounter{counts: make(map[string]int)}
}

func (c *phraseCounter) add(phrase string) {
	if _, ok := c.counts[phrase]; !ok {
		c.order = append(c.order, phrase)
	}
	c.counts[phrase]++
}

// ranked returns phrases by descending count, ties in first-appearance order.
func (c *phraseCounter) ranked() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	sort.SliceStable(out, func(i, j int) bool {
		return c.counts[out[i]] > c.counts[out[j]]
	})
	return out
}

func extractKeyPhrases(tokens []string, topN int) []string {
	counter := newPhraseCounter()
	for n := 2; n <= 3; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			counter.add(strings.Join(tokens[i:i+n], " "))
		}
	}

	phrases := make([]string, 0, topN)
	for _, p := range counter.ranked() {
		if onlyStopWords(p) {
			continue
		}
		phrases = append(phrases, p)
		if len(phrases) == topN {
			break
		}
	}
	return phrases
}

func onlyStopWords(phrase string) bool {
	for _, w := range strings.Fields(phrase) {
		if !has(stopWords, w) {
			return false
		}
	}
	return true
}

// Aggregate reduces a neighborhood's posts into one analysis. Posts that
// cannot be analyzed are left out of the scores but still count in PostCount.
// The result depends only on the post set, not on the order of posts.
func (a *Analyzer) Aggregate(neighborhood string, posts []domain.Post) domain.AggregatedAnalysis {
	now := a.clock.Now().UTC()

	ordered := make([]domain.Post, len(posts))
	copy(ordered, posts)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	results := make([]domain.SentimentResult, 0, len(ordered))
	for _, p := range ordered {
		r, err := a.AnalyzePost(p)
		if err != nil {
			slog.Debug("Analyzer: skipping post", "neighborhood", neighborhood, "post_id", p.ID, "error", err)
			continue
		}
		results = append(results, r)
	}

	if len(results) == 0 {
		return domain.EmptyAnalysis(neighborhood, now)
	}

	total := float64(len(results))
	var compoundSum float64
	labels := map[domain.SentimentLabel]int{}
	aspectTotals := map[string]domain.AspectScore{}
	themes := newPhraseCounter()
	sources := map[string]struct{}{}

	for _, r := range results {
		compoundSum += r.Sentiment.CompoundScore
		labels[r.Label]++
		for name, s := range r.Aspects {
			t := aspectTotals[name]
			t.Mentions += s.Mentions
			t.Positive += s.Positive
			t.Negative += s.Negative
			aspectTotals[name] = t
		}
		for _, p := range r.KeyPhrases {
			themes.add(p)
		}
		if r.Source != "" {
			sources[r.Source] = struct{}{}
		}
	}

	score := compoundSum / total
	majority := 0
	for _, n := range labels {
		majority = max(majority, n)
	}

	return domain.AggregatedAnalysis{
		Neighborhood: neighborhood,
		PostCount:    len(ordered),
		OverallSentiment: domain.OverallSentiment{
			Label:      domain.LabelFor(score),
			Score:      score,
			Confidence: float64(majority) / total,
			Distribution: domain.Distribution{
				Positive: float64(labels[domain.LabelPositive]) / total,
				Neutral:  float64(labels[domain.LabelNeutral]) / total,
				Negative: float64(labels[domain.LabelNegative]) / total,
			},
		},
		AspectSentiment: summarizeAspects(aspectTotals),
		KeyThemes:       keyThemes(themes),
		Sources:         sortedKeys(sources),
		AnalysisDate:    now,
	}
}

func summarizeAspects(totals map[string]domain.AspectScore) []domain.AspectSummary {
	out := make([]domain.AspectSummary, 0, len(totals))
	for _, asp := range aspects {
		s, ok := totals[asp.name]
		if !ok {
			continue
		}
		s.Score = aspectScore(s.Positive, s.Negative)
		out = append(out, domain.AspectSummary{Aspect: asp.name, AspectScore: s})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Mentions > out[j].Mentions })
	return out
}

// keyThemes keeps phrases seen in more than one post, from the top of the ranking.
func keyThemes(c *phraseCounter) []string {
	ranked := c.ranked()
	if len(ranked) > maxKeyThemes {
		ranked = ranked[:maxKeyThemes]
	}
	out := make([]string, 0, len(ranked))
	for _, p := range ranked {
		if c.counts[p] > 1 {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
