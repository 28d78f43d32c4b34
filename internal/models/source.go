package models

const (
	SourceKindRSS    = "rss"
	SourceKindSearch = "search"
)

// SourceConfig describes one configured source.
type SourceConfig struct {
	Name     string `json:"name" yaml:"name"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Category string `json:"category" yaml:"category"`
	Kind     string `json:"kind" yaml:"kind"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`

	// Search API only.
	Language        string        `json:"language,omitempty" yaml:"language,omitempty"`
	SourceCountries string        `json:"sourceCountries,omitempty" yaml:"sourceCountries,omitempty"`
	SortBy          string        `json:"sortBy,omitempty" yaml:"sortBy,omitempty"`
	SortDirection   string        `json:"sortDirection,omitempty" yaml:"sortDirection,omitempty"`
	Queries         []SearchQuery `json:"queries,omitempty" yaml:"queries,omitempty"`
}

// SearchQuery is one request issued against a search API source.
// Either Text or SourceIDs is set.
type SearchQuery struct {
	Text      string `json:"text,omitempty" yaml:"text,omitempty"`
	SourceIDs string `json:"sourceIds,omitempty" yaml:"sourceIds,omitempty"`
	Number    int    `json:"number,omitempty" yaml:"number,omitempty"`
}

// Label names the query in logs and errors.
func (q SearchQuery) Label() string {
	if q.Text != "" {
		return "text=" + q.Text
	}
	return "source-ids=" + q.SourceIDs
}

type SourceInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Category    string `json:"category"`
	Description string `json:"description"`
	FeedType    string `json:"feedType"`
	Enabled     bool   `json:"enabled"`
}
