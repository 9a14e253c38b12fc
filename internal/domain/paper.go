package domain

import "time"

// Paper is a single arXiv announcement extracted from a listing.
type Paper struct {
	ArxivID  string
	Title    string
	Authors  []string
	Abstract string
	URL      string
	PDFURL   string
}

// ReviewedPaper is a paper that passed a subscriber's classification and
// carries the generated review.
type ReviewedPaper struct {
	Paper      Paper
	Review     string
	Confidence float64
	Reasoning  string
}

// DeliveredPaper is the persisted snapshot of a reviewed paper for one subscriber.
type DeliveredPaper struct {
	UserID      string
	ArxivID     string
	Title       string
	Authors     []string
	Abstract    string
	Review      string
	ArxivLink   string
	PDFLink     string
	ProcessedAt time.Time
}

// Delivered converts a reviewed paper into its storage snapshot.
func (r ReviewedPaper) Delivered(userID string, at time.Time) DeliveredPaper {
	return DeliveredPaper{
		UserID:      userID,
		ArxivID:     r.Paper.ArxivID,
		Title:       r.Paper.Title,
		Authors:     r.Paper.Authors,
		Abstract:    r.Paper.Abstract,
		Review:      r.Review,
		ArxivLink:   r.Paper.URL,
		PDFLink:     r.Paper.PDFURL,
		ProcessedAt: at,
	}
}

// Classification is the oracle's relevance verdict for one paper.
type Classification struct {
	Relevant   bool    `json:"is_relevant"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}
