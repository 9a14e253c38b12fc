// Package httpapi exposes subscriber feedback over HTTP: votes on delivered
// papers, the suggestion review queue and recent digest papers.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/infrastructure/storage"
	"PaperDigest/internal/logging"
)

const (
	defaultDays = 7
	maxDays     = 90
)

// Store is the persistence the API needs.
type Store interface {
	AddVote(ctx context.Context, v domain.VoteRecord) error
	Suggestions(ctx context.Context, userID string, status domain.SuggestionStatus) ([]domain.PromptSuggestion, error)
	AcceptSuggestion(ctx context.Context, id string) (domain.PromptSuggestion, error)
	RejectSuggestion(ctx context.Context, id string) error
	PapersSince(ctx context.Context, userID string, since time.Time) ([]domain.DeliveredPaper, error)
}

// Server serves the feedback routes.
type Server struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewServer wires the store.
func NewServer(store Store, logger *slog.Logger) *Server {
	return &Server{store: store, logger: logging.OrDiscard(logger), now: time.Now}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.handleHealth)

	users := router.Group("/users/:id")
	users.POST("/votes", s.handleVote)
	users.GET("/suggestions", s.handleListSuggestions)
	users.GET("/papers", s.handleRecentPapers)

	suggestions := router.Group("/suggestions/:id")
	suggestions.POST("/accept", s.handleAccept)
	suggestions.POST("/reject", s.handleReject)

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type voteRequest struct {
	PaperArxivID  string `json:"paper_arxiv_id" binding:"required"`
	PaperTitle    string `json:"paper_title"`
	PaperAbstract string `json:"paper_abstract"`
	Vote          string `json:"vote" binding:"required"`
}

func (s *Server) handleVote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vote: " + err.Error()})
		return
	}
	vote := domain.Vote(strings.ToLower(strings.TrimSpace(req.Vote)))
	if !vote.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vote must be up or down"})
		return
	}

	record := domain.VoteRecord{
		UserID:        c.Param("id"),
		PaperTitle:    req.PaperTitle,
		PaperArxivID:  strings.TrimSpace(req.PaperArxivID),
		PaperAbstract: req.PaperAbstract,
		Vote:          vote,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.AddVote(c.Request.Context(), record); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "recorded", "vote": vote})
}

type suggestionResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Type          string    `json:"pattern_type"`
	Description   string    `json:"pattern_description"`
	Confidence    float64   `json:"confidence"`
	Evidence      string    `json:"evidence"`
	SuggestedText string    `json:"suggested_text"`
	CurrentPrompt string    `json:"current_prompt"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func toSuggestionResponse(s domain.PromptSuggestion) suggestionResponse {
	return suggestionResponse{
		ID:            s.ID,
		UserID:        s.UserID,
		Type:          string(s.Type),
		Description:   s.Description,
		Confidence:    s.Confidence,
		Evidence:      s.Evidence,
		SuggestedText: s.SuggestedText,
		CurrentPrompt: s.CurrentPrompt,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
	}
}

func (s *Server) handleListSuggestions(c *gin.Context) {
	status := domain.SuggestionStatus(c.DefaultQuery("status", string(domain.SuggestionPending)))
	if status == "all" {
		status = ""
	} else if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + strconv.Quote(string(status))})
		return
	}

	list, err := s.store.Suggestions(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]suggestionResponse, 0, len(list))
	for _, item := range list {
		out = append(out, toSuggestionResponse(item))
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": out, "count": len(out)})
}

func (s *Server) handleAccept(c *gin.Context) {
	accepted, err := s.store.AcceptSuggestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSuggestionResponse(accepted))
}

func (s *Server) handleReject(c *gin.Context) {
	if err := s.store.RejectSuggestion(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": domain.SuggestionRejected})
}

type paperResponse struct {
	ArxivID     string    `json:"arxiv_id"`
	Title       string    `json:"title"`
	Authors     []string  `json:"authors"`
	Abstract    string    `json:"abstract"`
	Review      string    `json:"review"`
	ArxivLink   string    `json:"arxiv_link"`
	PDFLink     string    `json:"pdf_link"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (s *Server) handleRecentPapers(c *gin.Context) {
	days := defaultDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and " + strconv.Itoa(maxDays)})
			return
		}
		days = n
	}

	papers, err := s.store.PapersSince(c.Request.Context(), c.Param("id"), s.now().AddDate(0, 0, -days))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]paperResponse, 0, len(papers))
	for _, p := range papers {
		out = append(out, paperResponse{
			ArxivID:     p.ArxivID,
			Title:       p.Title,
			Authors:     p.Authors,
			Abstract:    p.Abstract,
			Review:      p.Review,
			ArxivLink:   p.ArxivLink,
			PDFLink:     p.PDFLink,
			ProcessedAt: p.ProcessedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"papers": out, "count": len(out), "days": days})
}

// fail maps store errors onto status codes.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("store request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
