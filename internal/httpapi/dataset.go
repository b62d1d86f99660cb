package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chenxu-corpus/chenxuvox/internal/dataset"
)

// exportDataset streams a ZIP archive of accepted recordings. Query
// parameters: speakerId limits to one speaker, minSnr drops recordings below
// the given signal to noise ratio.
func (s *Server) exportDataset(c *gin.Context) {
	filter := dataset.Filter{SpeakerID: c.Query("speakerId")}
	if raw := c.Query("minSnr"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			abortError(c, http.StatusBadRequest, "invalid minSnr")
			return
		}
		filter.MinSNR = &v
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="`+dataset.ArchiveName+`"`)

	n, err := s.exporter.Export(c.Request.Context(), c.Writer, filter)
	if err != nil {
		// Once archive bytes are out the status line is gone; all we can
		// do is log and cut the stream.
		s.log.ErrorContext(c.Request.Context(), "dataset export failed",
			slog.Int("included", n), slog.Any("error", err))
		if !c.Writer.Written() {
			abortError(c, http.StatusInternalServerError, "export failed")
		} else {
			c.Abort()
		}
		return
	}
}
