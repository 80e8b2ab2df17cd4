package retrieval

import (
	"sort"
	"strings"
	"time"

	"nudge/internal/types"
)

type scoredChunk struct {
	chunk types.Chunk
	score float64
}

// scoreAll scores every candidate and returns them sorted descending.
func (r *Retriever) scoreAll(intent string, intentEntities []types.Entity, candidates []candidate) []scoredChunk {
	now := time.Now()
	out := make([]scoredChunk, 0, len(candidates))
	for _, c := range candidates {
		s := r.cfg.RecencyWeight*recencyScore(c.chunk.Timestamp, now) +
			r.cfg.RelevanceWeight*topicMatch(intent, c.chunk) +
			r.cfg.EntityWeight*entityOverlap(intentEntities, c.chunk.Entities)
		if c.entitySearch {
			s += r.cfg.EntitySearchBoost
		}
		if contentContainsEntity(c.chunk.Content, intentEntities) {
			s += r.cfg.ContentEntityBoost
		}
		out = append(out, scoredChunk{chunk: c.chunk, score: s})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// recencyScore decays piecewise: 1.0 under an hour, 0.8→0.5 across the first
// day, 0.5→0.2 across the first week, then a 0.1 floor.
func recencyScore(ts, now time.Time) float64 {
	age := now.Sub(ts)
	switch {
	case age < time.Hour:
		return 1.0
	case age < 24*time.Hour:
		frac := float64(age-time.Hour) / float64(23*time.Hour)
		return 0.8 - 0.3*frac
	case age < 7*24*time.Hour:
		frac := float64(age-24*time.Hour) / float64(6*24*time.Hour)
		return 0.5 - 0.3*frac
	default:
		return 0.1
	}
}

// topicMatch estimates how much a chunk is about the intent. Base 0.3 so a
// candidate that got pulled in at all is never scored as irrelevant outright.
func topicMatch(intent string, chunk types.Chunk) float64 {
	score := 0.3

	intentLower := strings.ToLower(intent)
	if chunk.Topic != "" {
		topicLower := strings.ToLower(chunk.Topic)
		prefix := intentLower
		if len(prefix) > 40 {
			prefix = prefix[:40]
		}
		if strings.Contains(intentLower, topicLower) || strings.Contains(topicLower, prefix) {
			score += 0.3
		}
	}

	shared := sharedContentWords(intentLower, strings.ToLower(chunk.Content))
	bonus := 0.1 * float64(shared)
	if bonus > 0.4 {
		bonus = 0.4
	}
	score += bonus

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// sharedContentWords counts distinct words of 4+ characters that appear in
// both texts, stop-words excluded.
func sharedContentWords(a, b string) int {
	bWords := make(map[string]bool)
	for _, w := range strings.FieldsFunc(b, isWordSep) {
		if len(w) >= 4 && !isCommonWord(w) {
			bWords[w] = true
		}
	}
	seen := make(map[string]bool)
	count := 0
	for _, w := range strings.FieldsFunc(a, isWordSep) {
		if len(w) >= 4 && !isCommonWord(w) && bWords[w] && !seen[w] {
			seen[w] = true
			count++
		}
	}
	return count
}

// entityOverlap is the fraction of intent entities with at least one
// type-and-substring match among the chunk's entities.
func entityOverlap(intentEntities, chunkEntities []types.Entity) float64 {
	if len(intentEntities) == 0 {
		return 0
	}
	matched := 0
	for _, ie := range intentEntities {
		for _, ce := range chunkEntities {
			if ie.Matches(ce) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(intentEntities))
}

// contentContainsEntity reports whether the raw chunk text mentions any
// intent entity by value or leading token. Catches exact-name matches that
// vector and lexical search miss in long text.
func contentContainsEntity(content string, entities []types.Entity) bool {
	lower := strings.ToLower(content)
	for _, ent := range entities {
		if strings.Contains(lower, strings.ToLower(ent.Value)) {
			return true
		}
		if lead := ent.LeadingToken(); lead != "" && strings.Contains(lower, strings.ToLower(lead)) {
			return true
		}
	}
	return false
}

// contentTerms tokenizes the intent, strips stop-words and short tokens, and
// returns up to max distinct terms in order of appearance.
func contentTerms(intent string, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(intent), isWordSep) {
		if len(w) < 3 || isCommonWord(w) || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == max {
			break
		}
	}
	return out
}

func isWordSep(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
}

// isCommonWord filters high-frequency words that carry no retrieval signal.
func isCommonWord(word string) bool {
	common := map[string]bool{
		"the": true, "and": true, "for": true, "with": true, "that": true,
		"this": true, "from": true, "about": true, "have": true, "will": true,
		"would": true, "could": true, "should": true, "send": true, "write": true,
		"make": true, "need": true, "want": true, "please": true, "them": true,
		"their": true, "your": true, "into": true, "onto": true, "when": true,
		"what": true, "where": true, "which": true, "email": true, "mail": true,
		"message": true,
	}
	return common[word]
}
