package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chenxu-corpus/chenxuvox/internal/corpus"
)

const defaultSpeakerID = "default_speaker"

// nextPrompt returns the prompt the speaker should read next, with progress.
func (s *Server) nextPrompt(c *gin.Context) {
	speakerID := c.Query("speakerId")
	if speakerID == "" {
		speakerID = defaultSpeakerID
	}

	next, err := s.corpus.Next(c.Request.Context(), speakerID)
	if err != nil {
		if errors.Is(err, corpus.ErrNoPrompts) {
			abortError(c, http.StatusNotFound, "no prompts available")
			return
		}
		s.log.ErrorContext(c.Request.Context(), "next prompt failed", slog.Any("error", err))
		abortError(c, http.StatusInternalServerError, "prompt selection failed")
		return
	}
	c.JSON(http.StatusOK, next)
}

// promptList is the response of GET /api/corpus/list.
type promptList struct {
	Total int             `json:"total"`
	Items []corpus.Prompt `json:"items"`
}

// listPrompts returns canonical prompts, newest ids last, capped by the limit
// query parameter (default 100, max 500).
func (s *Server) listPrompts(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			abortError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	prompts, err := s.corpus.Prompts(c.Request.Context())
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "prompt list failed", slog.Any("error", err))
		abortError(c, http.StatusInternalServerError, "prompt list failed")
		return
	}

	total := len(prompts)
	if len(prompts) > limit {
		prompts = prompts[:limit]
	}
	c.JSON(http.StatusOK, promptList{Total: total, Items: prompts})
}

// listCandidates returns staged candidates, optionally filtered by the
// status query parameter.
func (s *Server) listCandidates(c *gin.Context) {
	status := corpus.CandidateStatus(c.Query("status"))
	candidates, err := s.corpus.Candidates(c.Request.Context(), status)
	if err != nil {
		if status != "" && !status.IsValid() {
			abortError(c, http.StatusBadRequest, "invalid status")
			return
		}
		s.log.ErrorContext(c.Request.Context(), "candidate list failed", slog.Any("error", err))
		abortError(c, http.StatusInternalServerError, "candidate list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(candidates), "items": candidates})
}

// generateCorpus runs one LLM generation batch and stages the results.
func (s *Server) generateCorpus(c *gin.Context) {
	var req corpus.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.corpus.Generate(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, corpus.ErrNoGenerator) {
			abortError(c, http.StatusServiceUnavailable, "generation is not configured")
			return
		}
		s.log.ErrorContext(c.Request.Context(), "corpus generation failed", slog.Any("error", err))
		abortError(c, http.StatusBadGateway, "generation failed")
		return
	}
	c.JSON(http.StatusOK, res)
}

// reviewRequest is the body of the approve and reject endpoints.
type reviewRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (s *Server) approveCorpus(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "ids are required")
		return
	}
	n, err := s.corpus.Approve(c.Request.Context(), req.IDs)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "corpus approve failed", slog.Any("error", err))
		abortError(c, http.StatusInternalServerError, "approve failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"approved": n})
}

func (s *Server) rejectCorpus(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "ids are required")
		return
	}
	n, err := s.corpus.Reject(c.Request.Context(), req.IDs)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "corpus reject failed", slog.Any("error", err))
		abortError(c, http.StatusInternalServerError, "reject failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": n})
}
