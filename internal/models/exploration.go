package models

// Obstacle classifies why a page exploration stopped early.
type Obstacle string

const (
	ObstacleNone         Obstacle = ""
	ObstacleAuthWall     Obstacle = "auth_wall"
	ObstacleNotFound     Obstacle = "not_found"
	ObstacleAccessDenied Obstacle = "access_denied"
	ObstacleErrorPage    Obstacle = "error_page"
)

// Exploration is the outcome of scraping a single candidate page.
type Exploration struct {
	Accessible      bool          `json:"accessible"`
	Title           string        `json:"title"`
	FinalURL        string        `json:"final_url"`
	MetaDescription string        `json:"meta_description,omitempty"`
	Obstacle        Obstacle      `json:"obstacle,omitempty"`
	ObstacleDetail  string        `json:"obstacle_detail,omitempty"`
	FormatFiles     []FormatFile  `json:"format_files,omitempty"`
	Deadline        *Deadline     `json:"deadline,omitempty"`
	RelatedLinks    []RelatedLink `json:"related_links,omitempty"`
}

// Deadline is an application deadline extracted from page text.
type Deadline struct {
	Date    string `json:"date"` // ISO 2006-01-02
	Keyword string `json:"keyword"`
	Context string `json:"context"`
}

// RelatedLink is a navigation link that looks like it leads to grant
// application material.
type RelatedLink struct {
	URL            string `json:"url"`
	Text           string `json:"text"`
	RelevanceScore int    `json:"relevance_score"`
}
