package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"PaperDigest/internal/digest"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

const (
	defaultMaxAuthors = 10
	weeklyWindow      = 7 * 24 * time.Hour
)

// PipelineOptions tunes delivery.
type PipelineOptions struct {
	SiteURL    string
	SendEmpty  bool
	MaxAuthors int
}

// PipelineDeps wires all driven adapters into the digest pipeline.
type PipelineDeps struct {
	Source      ports.PaperSource
	Subscribers ports.SubscriberRepository
	Papers      ports.PaperRepository
	Classifier  ports.PaperClassifier
	Reviewer    ports.PaperReviewer
	Mailer      ports.Mailer
	Notifier    ports.Notifier
	Options     PipelineOptions
	Logger      *slog.Logger
}

// Pipeline implements the daily digest workflow.
type Pipeline struct {
	source      ports.PaperSource
	subscribers ports.SubscriberRepository
	papers      ports.PaperRepository
	classifier  ports.PaperClassifier
	reviewer    ports.PaperReviewer
	mailer      ports.Mailer
	notifier    ports.Notifier
	opts        PipelineOptions
	logger      *slog.Logger

	// shouldSend is the schedule gate; tests replace it.
	shouldSend func(domain.Subscriber, time.Time) bool
}

// Stats summarizes one pipeline run.
type Stats struct {
	Subscribers    int
	Categories     int
	PapersScraped  int
	PapersRelevant int
	PapersStored   int
	EmailsSent     int
	EmailsSkipped  int
	Failures       int
}

// Report renders the operator summary.
func (s Stats) Report(now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Digest run %s\n", now.Format(time.DateOnly))
	fmt.Fprintf(&b, "Subscribers: %d\n", s.Subscribers)
	fmt.Fprintf(&b, "Categories: %d, papers scraped: %d\n", s.Categories, s.PapersScraped)
	fmt.Fprintf(&b, "Relevant: %d, stored: %d\n", s.PapersRelevant, s.PapersStored)
	fmt.Fprintf(&b, "Emails sent: %d, skipped: %d, failures: %d", s.EmailsSent, s.EmailsSkipped, s.Failures)
	return b.String()
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	opts := deps.Options
	if opts.MaxAuthors <= 0 {
		opts.MaxAuthors = defaultMaxAuthors
	}
	return &Pipeline{
		source:      deps.Source,
		subscribers: deps.Subscribers,
		papers:      deps.Papers,
		classifier:  deps.Classifier,
		reviewer:    deps.Reviewer,
		mailer:      deps.Mailer,
		notifier:    deps.Notifier,
		opts:        opts,
		logger:      logging.OrDiscard(deps.Logger),
		shouldSend:  digest.ShouldSendToday,
	}
}

// Run scrapes the day's papers once and builds a digest for every mailable
// subscriber. force bypasses the send schedule. Per-subscriber failures are
// counted in Stats; only failing to load subscribers or papers is returned.
func (p *Pipeline) Run(ctx context.Context, now time.Time, force bool) (Stats, error) {
	var stats Stats
	if p.source == nil || p.subscribers == nil {
		return stats, errors.New("pipeline is not configured")
	}

	subs, err := p.subscribers.EmailSubscribers(ctx)
	if err != nil {
		return stats, fmt.Errorf("load subscribers: %w", err)
	}
	stats.Subscribers = len(subs)
	if len(subs) == 0 {
		p.logger.Info("no subscribers with email enabled")
		return stats, nil
	}

	categories := make([]string, 0, len(subs))
	for _, sub := range subs {
		categories = append(categories, sub.ArxivCategory())
	}

	byCategory, err := p.source.FetchDaily(ctx, now, categories)
	if err != nil {
		return stats, fmt.Errorf("fetch daily: %w", err)
	}
	stats.Categories = len(byCategory)
	for _, papers := range byCategory {
		stats.PapersScraped += len(papers)
	}

	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		log := p.logger.With("user_id", sub.ID, "index", i+1, "of", len(subs))
		if err := p.deliver(ctx, sub, byCategory[sub.ArxivCategory()], now, force, &stats, log); err != nil {
			stats.Failures++
			log.Error("digest failed", "error", err)
		}
	}

	p.logger.Info("digest run done",
		"subscribers", stats.Subscribers,
		"sent", stats.EmailsSent,
		"skipped", stats.EmailsSkipped,
		"failures", stats.Failures,
	)
	p.publish(ctx, stats.Report(now))
	return stats, nil
}

func (p *Pipeline) deliver(ctx context.Context, sub domain.Subscriber, papers []domain.Paper, now time.Time, force bool, stats *Stats, log *slog.Logger) error {
	relevant := p.selectRelevant(ctx, sub, papers)
	stats.PapersRelevant += len(relevant)

	today := make([]domain.DeliveredPaper, 0, len(relevant))
	for _, rp := range relevant {
		delivered := rp.Delivered(sub.ID, now)
		today = append(today, delivered)
		if p.papers == nil {
			continue
		}
		inserted, err := p.papers.StorePaper(ctx, delivered)
		if err != nil {
			log.Warn("store paper failed", "arxiv_id", delivered.ArxivID, "error", err)
			continue
		}
		if inserted {
			stats.PapersStored++
		}
	}

	if !force && !p.shouldSend(sub, now) {
		stats.EmailsSkipped++
		log.Info("not scheduled today", "frequency", sub.Frequency)
		return nil
	}

	outgoing := today
	if sub.Frequency == domain.FrequencyWeekly && p.papers != nil {
		week, err := p.papers.PapersSince(ctx, sub.ID, now.Add(-weeklyWindow))
		if err != nil {
			return fmt.Errorf("load weekly papers: %w", err)
		}
		outgoing = week
	}

	html, err := digest.RenderEmail(outgoing, sub, digest.RenderOptions{
		SiteURL:   p.opts.SiteURL,
		SendEmpty: p.opts.SendEmpty,
		Now:       now,
	})
	if errors.Is(err, digest.ErrEmptyDigest) {
		stats.EmailsSkipped++
		log.Info("empty digest skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("render digest: %w", err)
	}

	if p.mailer == nil {
		return errors.New("mailer is not configured")
	}
	if err := p.mailer.Send(ctx, sub.Email, digest.Subject(len(outgoing)), html); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	stats.EmailsSent++
	log.Info("digest sent", "papers", len(outgoing))

	if err := p.subscribers.RecordLastSent(ctx, sub.ID, now); err != nil {
		log.Warn("record last sent failed", "error", err)
	}
	if len(outgoing) > 0 {
		if err := p.subscribers.AddPapersSent(ctx, sub.ID, len(outgoing)); err != nil {
			log.Warn("update papers sent failed", "error", err)
		}
	}
	return nil
}

// selectRelevant classifies every paper against the subscriber prompt and
// reviews the relevant ones, most confident first.
func (p *Pipeline) selectRelevant(ctx context.Context, sub domain.Subscriber, papers []domain.Paper) []domain.ReviewedPaper {
	if p.classifier == nil || len(papers) == 0 {
		return nil
	}

	var relevant []domain.ReviewedPaper
	for _, paper := range papers {
		verdict := p.classifier.Classify(ctx, sub.CustomPrompt, paper)
		if !verdict.Relevant {
			continue
		}

		review := paper.Abstract
		if p.reviewer != nil {
			review = p.reviewer.Review(ctx, sub.CustomPrompt, paper)
		}
		paper.Authors = digest.FormatAuthors(paper.Authors, p.opts.MaxAuthors)

		relevant = append(relevant, domain.ReviewedPaper{
			Paper:      paper,
			Review:     review,
			Confidence: verdict.Confidence,
			Reasoning:  verdict.Reasoning,
		})
	}

	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Confidence > relevant[j].Confidence
	})
	return relevant
}

func (p *Pipeline) publish(ctx context.Context, report string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.PublishReport(ctx, report); err != nil {
		p.logger.Warn("publish report failed", "error", err)
	}
}
