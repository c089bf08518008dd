package keywords

// IsStopWord reports whether w (already lowercased) is a common English filler word.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

var stopWords = func() map[string]struct{} {
	words := []string{
		"the", "and", "for", "are", "but", "not", "you", "all", "any", "can", "had", "her",
		"was", "one", "our", "out", "day", "get", "has", "him", "his", "how", "its", "may",
		"new", "now", "old", "see", "two", "who", "did", "she", "use", "way", "many", "then",
		"them", "these", "this", "that", "with", "have", "from", "they", "know", "want",
		"been", "good", "much", "some", "time", "very", "when", "come", "here", "just",
		"like", "long", "make", "more", "over", "such", "take", "than", "well", "were",
		"what", "will", "your", "about", "after", "again", "also", "because", "before",
		"being", "between", "both", "could", "does", "doing", "down", "during", "each",
		"even", "every", "into", "most", "must", "only", "other", "same", "should", "since",
		"still", "their", "there", "those", "through", "under", "until", "upon", "where",
		"which", "while", "whom", "whose", "would", "said", "says", "according", "across",
		"against", "among", "around", "however", "including", "within", "without", "year",
		"years", "first", "last", "next", "back", "made", "news", "report", "reports",
		"there's", "it's", "than", "too", "off", "own", "yet", "via", "per", "why",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
