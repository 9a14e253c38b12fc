package digest

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"PaperDigest/internal/domain"
)

// ErrEmptyDigest is returned when there is nothing to send and empty digests are disabled.
var ErrEmptyDigest = errors.New("digest has no papers")

const defaultSiteURL = "https://promptsandpapers.com"

// RenderOptions controls the newsletter page.
type RenderOptions struct {
	SiteURL   string
	SendEmpty bool
	Now       time.Time
}

type emailPaper struct {
	Number     int
	Title      string
	Authors    string
	ArxivID    string
	Review     template.HTML
	ArxivLink  string
	PDFLink    string
	VoteLink   string
	AlphaXivID string
}

type emailView struct {
	Name         string
	Date         string
	Count        int
	Papers       []emailPaper
	AccountLink  string
	Unsubscribe  string
	RecentPapers string
}

var emailTemplates = template.Must(template.New("digest").Parse(digestTemplate + emptyTemplate))

// RenderEmail builds the digest HTML for sub. With no papers it renders the
// "nothing today" page, or returns ErrEmptyDigest when empty digests are off.
func RenderEmail(papers []domain.DeliveredPaper, sub domain.Subscriber, opts RenderOptions) (string, error) {
	if len(papers) == 0 && !opts.SendEmpty {
		return "", ErrEmptyDigest
	}

	site := strings.TrimSuffix(opts.SiteURL, "/")
	if site == "" {
		site = defaultSiteURL
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	token := url.QueryEscape(ManagementToken(sub))
	view := emailView{
		Name:         sub.FullName,
		Date:         now.Format("02 January 2006"),
		Count:        len(papers),
		AccountLink:  site + "/?action=dashboard&token=" + token,
		Unsubscribe:  site + "/?action=management&token=" + token,
		RecentPapers: site + "/?view=recent-papers",
	}
	voteLink := site + "/?view=recent-papers&filter=today&user=" + url.QueryEscape(sub.ID)

	for i, p := range papers {
		pdf := p.PDFLink
		if pdf == "" {
			pdf = strings.Replace(p.ArxivLink, "/abs/", "/pdf/", 1)
		}
		view.Papers = append(view.Papers, emailPaper{
			Number:     i + 1,
			Title:      p.Title,
			Authors:    strings.Join(p.Authors, ", "),
			ArxivID:    p.ArxivID,
			Review:     template.HTML(FormatReviewSections(p.Review)),
			ArxivLink:  p.ArxivLink,
			PDFLink:    pdf,
			VoteLink:   voteLink,
			AlphaXivID: p.ArxivID,
		})
	}

	name := "digest"
	if len(papers) == 0 {
		name = "empty"
	}

	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, view); err != nil {
		return "", fmt.Errorf("render %s email: %w", name, err)
	}
	return buf.String(), nil
}

const emptyTemplate = `{{define "empty"}}<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Arial, sans-serif; max-width: 700px; margin: 0 auto; padding: 20px; background-color: #f5f5f5;">
    <div style="background: #1976D2; color: white; padding: 30px; border-radius: 8px; margin-bottom: 30px;">
        <h1 style="margin: 0 0 10px 0; font-size: 28px; font-weight: 600;">Your Paper Selection by Prompts &amp; Papers</h1>
        <p style="margin: 0; font-size: 16px; opacity: 0.9;">Hello {{.Name}}!</p>
    </div>
    <div style="background: white; padding: 30px; border-radius: 8px; text-align: center;">
        <h3 style="color: #666; margin-top: 0;">No relevant papers found today</h3>
        <p style="color: #888;">We scanned today's submissions but didn't find any papers matching your criteria.</p>
    </div>
    <div style="background: white; padding: 25px; margin-top: 30px; border-radius: 8px; text-align: center; font-size: 13px; color: #6b7280;">
        <p style="margin: 0;">
            <a href="{{.AccountLink}}" style="color: #1976D2; text-decoration: none;">Your Account</a> |
            <a href="{{.Unsubscribe}}" style="color: #1976D2; text-decoration: none;">Unsubscribe</a>
        </p>
    </div>
</body>
</html>{{end}}`

const digestTemplate = `{{define "digest"}}<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Arial, sans-serif; max-width: 700px; margin: 0 auto; padding: 20px; background-color: #f5f5f5;">
    <div style="background: #1976D2; color: white; padding: 30px; border-radius: 8px; margin-bottom: 30px;">
        <h1 style="margin: 0 0 10px 0; font-size: 28px; font-weight: 600;">Your Paper Selection</h1>
        <p style="margin: 0 0 6px 0; font-size: 16px; opacity: 0.9;">Hello {{.Name}}!</p>
        <p style="margin: 0; font-size: 16px; opacity: 0.9;">{{.Date}} &bull; {{.Count}} papers</p>
    </div>
{{range .Papers}}
    <div class="paper" style="background: white; border-left: 4px solid #1976D2; padding: 25px; margin-bottom: 20px; border-radius: 4px; box-shadow: 0 1px 3px rgba(0,0,0,0.1);">
        <table width="100%" cellpadding="0" cellspacing="0" style="border-bottom: 1px solid #e5e7eb; padding-bottom: 15px; margin-bottom: 15px;">
            <tr>
                <td style="vertical-align: top; padding-right: 15px;">
                    <h3 style="margin: 0; color: #0f172a; font-size: 18px; line-height: 1.4;">{{.Number}}. {{.Title}}</h3>
                    <p style="margin: 0 0 5px 0; font-size: 14px; color: #0f172a;"><strong>Authors:</strong> {{.Authors}}</p>
                    <p style="margin: 0; font-size: 13px; color: #0f172a;"><strong>arXiv ID:</strong> {{.ArxivID}}</p>
                </td>
                <td style="vertical-align: top; text-align: right; width: 30%;">
                    <table cellpadding="0" cellspacing="0" style="margin: 0 0 0 auto;">
                        <tr>
                            <td style="padding: 0 2px;"><a href="{{.VoteLink}}" style="display: block; width: 36px; height: 36px; background: #0f172a; color: white; border: 2px solid #0f172a; text-decoration: none; border-radius: 4px; font-size: 18px; line-height: 32px; text-align: center; font-weight: bold; box-sizing: border-box;">+</a></td>
                            <td style="padding: 0 2px;"><a href="{{.VoteLink}}" style="display: block; width: 36px; height: 36px; box-sizing: border-box; background: white; color: #0f172a; border: 2px solid #0f172a; text-decoration: none; border-radius: 4px; font-size: 18px; line-height: 32px; text-align: center; font-weight: bold;">-</a></td>
                        </tr>
                    </table>
                </td>
            </tr>
        </table>
        <div style="color: #0f172a; font-size: 15px; line-height: 1.7;">{{.Review}}</div>
        <div style="margin-top: 20px; padding-top: 15px; border-top: 1px solid #e5e7eb;">
            <p style="margin: 0; font-size: 14px; color: #333;">
                <strong>Open the paper at:</strong>
                <a href="{{.ArxivLink}}" style="color: #1976D2; text-decoration: none; margin-left: 8px;">arXiv</a>
                <span style="margin: 0 8px; color: #d1d5db;">&bull;</span>
                <a href="{{.PDFLink}}" style="color: #1976D2; text-decoration: none;">PDF</a>
                <span style="margin: 0 8px; color: #d1d5db;">&bull;</span>
                <a href="https://www.alphaxiv.org/abs/{{.AlphaXivID}}" style="color: #1976D2; text-decoration: none;">alphaXiv</a>
                <span style="margin: 0 8px; color: #d1d5db;">&bull;</span>
                <a href="https://www.zotero.org/save?q={{.ArxivLink}}" style="color: #1976D2; text-decoration: none;">Zotero</a>
            </p>
        </div>
    </div>
{{end}}
    <div style="background: white; padding: 25px; margin-top: 30px; border-radius: 8px; text-align: center; font-size: 13px; color: #6b7280;">
        <p style="margin: 0 0 10px 0;">Prompts &amp; Papers - Your personalized research newsletter</p>
        <p style="margin: 0;">
            <a href="{{.RecentPapers}}" style="color: #1976D2; text-decoration: none;">Recent Papers</a> |
            <a href="{{.AccountLink}}" style="color: #1976D2; text-decoration: none;">Your Account</a> |
            <a href="{{.Unsubscribe}}" style="color: #1976D2; text-decoration: none;">Unsubscribe</a>
        </p>
    </div>
</body>
</html>{{end}}`
