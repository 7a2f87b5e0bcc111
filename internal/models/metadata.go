package models

// TextDirection is the reading direction reported by extraction
type TextDirection string

const (
	TextDirectionLTR  TextDirection = "ltr"
	TextDirectionRTL  TextDirection = "rtl"
	TextDirectionAuto TextDirection = "auto"
)

// ExtractedMetadata is the metadata produced alongside extracted text.
// Field names match the JSON stored with every content version.
type ExtractedMetadata struct {
	Author        string        `json:"author,omitempty"`
	Title         string        `json:"title,omitempty"`
	Description   string        `json:"description,omitempty"`
	Thumbnail     string        `json:"thumbnail,omitempty"`
	Favicon       string        `json:"favicon,omitempty"`
	PublishedAt   string        `json:"publishedAt,omitempty"`
	TextLanguage  string        `json:"textLanguage,omitempty"`
	TextDirection TextDirection `json:"textDirection,omitempty"`
}

// Merge returns m with every empty field filled from fallback
func (m ExtractedMetadata) Merge(fallback ExtractedMetadata) ExtractedMetadata {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&m.Author, fallback.Author)
	fill(&m.Title, fallback.Title)
	fill(&m.Description, fallback.Description)
	fill(&m.Thumbnail, fallback.Thumbnail)
	fill(&m.Favicon, fallback.Favicon)
	fill(&m.PublishedAt, fallback.PublishedAt)
	fill(&m.TextLanguage, fallback.TextLanguage)
	if m.TextDirection == "" {
		m.TextDirection = fallback.TextDirection
	}
	return m
}

// VersionMetadata is attached to every stored content version and to main.
// Timestamp doubles as the version's storage key.
type VersionMetadata struct {
	Timestamp string `json:"timestamp"`
	Length    int    `json:"length"`
	Hash      string `json:"hash"`
	ExtractedMetadata
}
