package sentiment

import (
	"fmt"
	"strings"

	"github.com/pscheid92/hoodpulse/internal/domain"
)

const (
	summaryAspects = 5
	summaryThemes  = 5
)

// Summarize renders an analysis as a short human-readable report.
func Summarize(a domain.AggregatedAnalysis) string {
	if a.PostCount == 0 {
		return fmt.Sprintf("No data available for %s.", a.Neighborhood)
	}

	o := a.OverallSentiment
	var b strings.Builder
	fmt.Fprintf(&b, "Neighborhood Sentiment Analysis for %s\n\n", a.Neighborhood)
	fmt.Fprintf(&b, "Based on %d posts analyzed on %s\n\n", a.PostCount, a.AnalysisDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Overall sentiment: %s (score: %.2f, confidence: %.2f)\n", o.Label, o.Score, o.Confidence)
	fmt.Fprintf(&b, "Sentiment distribution: %.1f%% positive, %.1f%% neutral, %.1f%% negative\n\n",
		o.Distribution.Positive*100, o.Distribution.Neutral*100, o.Distribution.Negative*100)

	b.WriteString("Top aspects mentioned:\n")
	for i, s := range a.AspectSentiment {
		if i == summaryAspects {
			break
		}
		if s.Mentions == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s (score: %.2f, mentions: %d)\n", s.Aspect, aspectLabel(s.Score), s.Score, s.Mentions)
	}

	b.WriteString("\nKey themes mentioned:\n")
	for i, theme := range a.KeyThemes {
		if i == summaryThemes {
			break
		}
		fmt.Fprintf(&b, "- %s\n", theme)
	}

	fmt.Fprintf(&b, "\nData sources: %s\n", strings.Join(a.Sources, ", "))
	return b.String()
}

// aspectLabel reads an aspect by sign alone; the overall label uses LabelFor's
// neutral band instead.
func aspectLabel(score float64) domain.SentimentLabel {
	switch {
	case score > 0:
		return domain.LabelPositive
	case score < 0:
		return domain.LabelNegative
	default:
		return domain.LabelNeutral
	}
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
