// Package sentiment implements the lexicon-based neighborhood sentiment analyzer.
//
// AnalyzePost scores a single post against fixed positive/negative term sets with
// negation and intensifier handling, extracts aspect sentiment and key phrases.
// Aggregate reduces a neighborhood's posts into one AggregatedAnalysis. No mutable state;
// the only input besides the posts is the injected clock used for the analysis date.
package sentiment
