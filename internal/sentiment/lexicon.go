package sentiment

import "strings"

const (
	negationWindow    = 3
	intensifierWeight = 1.5
	aspectWindow      = 5
	maxKeyPhrases     = 10
	maxKeyThemes      = 10
)

var positiveTerms = setOf(
	// general
	"great", "excellent", "good", "nice", "love", "wonderful", "fantastic", "amazing", "beautiful", "enjoy",
	"happy", "perfect", "recommend", "best", "favorite", "lovely", "awesome", "ideal", "convenient", "clean",
	// neighborhood
	"safe", "friendly", "walkable", "quiet", "affordable", "diverse", "community", "accessible",
	"parks", "restaurants", "shops", "transit", "schools", "improving", "growing", "trendy", "vibrant",
	"culture", "historic", "charming", "green", "peaceful", "family-friendly", "nightlife", "entertainment",
)

var negativeTerms = setOf(
	// general
	"bad", "poor", "terrible", "horrible", "awful", "hate", "dislike", "avoid", "disappointing", "worst",
	"expensive", "overpriced", "dirty", "rundown", "problem", "issue", "complaint", "negative", "mediocre",
	// neighborhood
	"unsafe", "dangerous", "crime", "noisy", "traffic", "congestion", "crowded", "homeless", "gentrification",
	"unaffordable", "parking", "pollution", "trash", "litter", "drugs",
	"sketchy", "boring", "isolated", "inconvenient", "far", "remote", "flood", "construction",
)

var negationWords = setOf(
	"not", "no", "n't", "never", "none", "nobody", "nothing", "neither", "nor", "nowhere",
	"hardly", "barely", "rarely", "seldom",
)

var intensifiers = setOf(
	"very", "really", "extremely", "incredibly", "absolutely", "completely", "totally", "utterly",
	"highly", "especially",
)

var stopWords = setOf(
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "with", "by", "of", "is", "are",
)

type aspect struct {
	name  string
	terms []string
}

// aspects is ordered; the order is the tiebreak when mention counts are equal.
var aspects = []aspect{
	{"safety", []string{"safe", "unsafe", "dangerous", "crime", "security", "police", "mugging", "break-in", "theft", "sketchy"}},
	{"affordability", []string{"affordable", "expensive", "price", "cost", "rent", "mortgage", "budget", "overpriced", "value", "cheap"}},
	{"transportation", []string{"transit", "bus", "subway", "metro", "commute", "traffic", "parking", "car", "bike", "walk", "walkable"}},
	{"amenities", []string{"restaurant", "shop", "store", "grocery", "market", "cafe", "bar", "gym", "fitness", "mall"}},
	{"schools", []string{"school", "education", "university", "college", "student", "teacher", "academic", "district"}},
	{"community", []string{"neighbor", "community", "people", "friendly", "family", "diverse", "diversity", "culture", "demographic"}},
	{"noise", []string{"quiet", "noisy", "loud", "peaceful", "siren", "traffic", "party", "construction", "sound"}},
	{"cleanliness", []string{"clean", "dirty", "trash", "litter", "garbage", "maintained", "upkeep", "rundown", "pristine"}},
	{"parks", []string{"park", "green", "outdoor", "nature", "tree", "garden", "playground", "trail", "recreation"}},
	{"nightlife", []string{"nightlife", "bar", "club", "restaurant", "entertainment", "venue", "concert", "theater", "activity"}},
}

// Aspects returns the aspect category names in their canonical order.
func Aspects() []string {
	names := make([]string, len(aspects))
	for i, a := range aspects {
		names[i] = a.name
	}
	return names
}

func setOf(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func has(set map[string]struct{}, token string) bool {
	_, ok := set[token]
	return ok
}

// polarity returns +1 for a positive term, -1 for a negative term, 0 otherwise.
func polarity(token string) float64 {
	if has(positiveTerms, token) {
		return 1
	}
	if has(negativeTerms, token) {
		return -1
	}
	return 0
}

// isNegation also catches contractions like "isn't" or "don't".
func isNegation(token string) bool {
	return has(negationWords, token) || strings.HasSuffix(token, "n't")
}

// matchesTerm accepts exact and plural forms, plus prefixes of longer terms
// ("restaurants", "schooling"). Short terms like "bar" must match exactly so
// they do not fire on "barely".
func matchesTerm(token, term string) bool {
	if token == term || token == term+"s" || token == term+"es" {
		return true
	}
	return len(term) >= 5 && strings.HasPrefix(token, term)
}
