package aggregator

import "github.com/johnrirwin/nordicwire/internal/models"

// Deduplicate keeps one draft per SourceURL. The last draft seen for a URL
// wins and takes the slot of that URL's first occurrence.
func Deduplicate(drafts []models.ArticleDraft) []models.ArticleDraft {
	index := make(map[string]int, len(drafts))
	out := make([]models.ArticleDraft, 0, len(drafts))

	for _, d := range drafts {
		if i, ok := index[d.SourceURL]; ok {
			out[i] = d
			continue
		}
		index[d.SourceURL] = len(out)
		out = append(out, d)
	}

	return out
}
