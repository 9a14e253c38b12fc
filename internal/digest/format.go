package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"strconv"
	"strings"
	"time"

	"PaperDigest/internal/domain"
)

const etAl = "et al."

var sectionHeaders = []string{
	"Paper Overview",
	"Methodology",
	"Main Findings",
	"Relevance to Your Prompt",
	"Limitations",
}

const sectionHeaderStyle = `display: block; margin-top: 24px; margin-bottom: 0; font-weight: 600;`

// FormatReviewSections escapes the review, styles known section headers that
// stand on their own line and turns the remaining newlines into <br>.
func FormatReviewSections(review string) string {
	lines := strings.Split(html.EscapeString(review), "\n")

	var b strings.Builder
	for i, line := range lines {
		if header, ok := sectionHeader(line); ok {
			b.WriteString(`<i style="` + sectionHeaderStyle + `">` + header + `</i>`)
			continue
		}
		b.WriteString(line)
		if i < len(lines)-1 {
			b.WriteString("<br>")
		}
	}
	return b.String()
}

func sectionHeader(line string) (string, bool) {
	candidate := strings.TrimSuffix(strings.TrimSpace(line), ":")
	candidate = strings.TrimSpace(candidate)
	for _, h := range sectionHeaders {
		if candidate == h {
			return h, true
		}
	}
	return "", false
}

// FormatAuthors keeps the first max names and marks the rest with "et al.".
func FormatAuthors(authors []string, max int) []string {
	if max <= 0 || len(authors) <= max {
		return append([]string(nil), authors...)
	}
	out := append([]string(nil), authors[:max]...)
	return append(out, etAl)
}

// ManagementToken derives the 32-character token used by account and unsubscribe links.
func ManagementToken(sub domain.Subscriber) string {
	created := ""
	if !sub.CreatedAt.IsZero() {
		created = sub.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	sum := sha256.Sum256([]byte(sub.ID + sub.Email + created))
	return hex.EncodeToString(sum[:])[:32]
}

// Subject is the email subject line for a digest of n papers.
func Subject(n int) string {
	if n == 0 {
		return "Prompts & Papers"
	}
	return "Prompts & Papers - " + strconv.Itoa(n) + " papers"
}
