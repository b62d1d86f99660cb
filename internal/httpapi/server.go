// Package httpapi exposes the collection service over HTTP: recording upload
// and download, prompt selection, the corpus generation/review workflow, and
// dataset export.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chenxu-corpus/chenxuvox/internal/corpus"
	"github.com/chenxu-corpus/chenxuvox/internal/dataset"
	"github.com/chenxu-corpus/chenxuvox/internal/health"
	"github.com/chenxu-corpus/chenxuvox/internal/observe"
	"github.com/chenxu-corpus/chenxuvox/internal/phonetic"
	"github.com/chenxu-corpus/chenxuvox/internal/recording"
)

// Server wires the HTTP routes to the domain services.
type Server struct {
	engine *gin.Engine

	pipeline   *recording.Pipeline
	recordings recording.Store
	corpus     *corpus.Service
	exporter   *dataset.Exporter
	log        *slog.Logger
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Pipeline   *recording.Pipeline
	Recordings recording.Store
	Corpus     *corpus.Service
	Exporter   *dataset.Exporter
	Health     *health.Handler
	Metrics    *observe.Metrics
	Logger     *slog.Logger

	// MetricsHTTP, when set, is mounted at GET /metrics on the main
	// listener. Leave nil when metrics are served on a separate address.
	MetricsHTTP http.Handler
}

// New builds the router. The gin mode is whatever the process has set; call
// gin.SetMode before New when the default is not wanted.
func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		pipeline:   deps.Pipeline,
		recordings: deps.Recordings,
		corpus:     deps.Corpus,
		exporter:   deps.Exporter,
		log:        log,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if deps.Metrics != nil {
		engine.Use(observe.GinMiddleware(deps.Metrics))
	}

	if deps.Health != nil {
		deps.Health.Register(engine)
	}
	if deps.MetricsHTTP != nil {
		engine.GET("/metrics", gin.WrapH(deps.MetricsHTTP))
	}

	api := engine.Group("/api")
	{
		api.POST("/recordings/upload", s.uploadRecording)
		api.GET("/recordings/:id/download", s.downloadRecording)

		api.GET("/corpus/next", s.nextPrompt)
		api.GET("/corpus/list", s.listPrompts)
		api.GET("/corpus/candidates", s.listCandidates)
		api.POST("/corpus/generate", s.generateCorpus)
		api.POST("/corpus/approve", s.approveCorpus)
		api.POST("/corpus/reject", s.rejectCorpus)
		api.POST("/corpus/analyze", s.analyzeText)

		api.GET("/dataset/export", s.exportDataset)
	}

	s.engine = engine
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Error string `json:"error"`
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorBody{Error: msg})
}

// analyzeRequest is the body of POST /api/corpus/analyze.
type analyzeRequest struct {
	Text string `json:"text" binding:"required"`
}

// analyzeResponse pairs the authenticity report with its heatmap and the
// pinyin romanization of the text.
type analyzeResponse struct {
	Analysis phonetic.Analysis      `json:"analysis"`
	Heatmap  []phonetic.HeatmapCell `json:"heatmap"`
	Pinyin   []string               `json:"pinyin"`
}

// analyzeText scores arbitrary text without staging anything. Used by review
// UIs to preview hand-edited sentences.
func (s *Server) analyzeText(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "text is required")
		return
	}
	c.JSON(http.StatusOK, analyzeResponse{
		Analysis: phonetic.Analyze(req.Text),
		Heatmap:  phonetic.Heatmap(req.Text),
		Pinyin:   phonetic.Romanize(req.Text),
	})
}
