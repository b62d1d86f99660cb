package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chenxu-corpus/chenxuvox/internal/quality"
	"github.com/chenxu-corpus/chenxuvox/internal/recording"
)

// uploadMetrics is the metrics snapshot returned to the uploading client.
// DBFS falls back to -60 when RMS could not be measured, matching what the
// classifier assumed.
type uploadMetrics struct {
	DBFS            float64  `json:"dbFS"`
	Clipping        bool     `json:"clipping"`
	SilenceDuration float64  `json:"silenceDuration"`
	PeakDbfs        *float64 `json:"peakDbfs"`
	SNRDb           *float64 `json:"snrDb"`
	ClippingCount   int      `json:"clippingCount"`
}

type uploadResponse struct {
	RecordingID string          `json:"recordingId"`
	Status      quality.Verdict `json:"status"`
	FileURL     string          `json:"fileUrl"`
	Metrics     uploadMetrics   `json:"metrics"`
}

// uploadRecording accepts a multipart form with the audio under "file" and
// optional "paragraphId" / "speakerId" fields, runs the quality pipeline, and
// returns the stored attempt's verdict and metrics.
func (s *Server) uploadRecording(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		abortError(c, http.StatusBadRequest, "missing file")
		return
	}

	src, err := file.Open()
	if err != nil {
		abortError(c, http.StatusBadRequest, "unreadable file")
		return
	}
	defer src.Close()

	attempt, err := s.pipeline.Process(c.Request.Context(), recording.Upload{
		PromptID:  c.PostForm("paragraphId"),
		SpeakerID: c.PostForm("speakerId"),
		Data:      src,
	})
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "recording upload failed", slog.Any("error", err))
		abortError(c, http.StatusInternalServerError, "failed to store recording")
		return
	}

	dbfs := -60.0
	if attempt.RMSDbfs != nil {
		dbfs = *attempt.RMSDbfs
	}
	c.JSON(http.StatusOK, uploadResponse{
		RecordingID: attempt.ID,
		Status:      attempt.Status,
		FileURL:     "/api/recordings/" + attempt.ID + "/download",
		Metrics: uploadMetrics{
			DBFS:            dbfs,
			Clipping:        attempt.ClippingCount > 0,
			SilenceDuration: attempt.SilenceSeconds,
			PeakDbfs:        attempt.PeakDbfs,
			SNRDb:           attempt.SNRDb,
			ClippingCount:   attempt.ClippingCount,
		},
	})
}

// downloadRecording serves the original raw upload.
func (s *Server) downloadRecording(c *gin.Context) {
	id := c.Param("id")
	attempt, err := s.recordings.Get(c.Request.Context(), id)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "recording lookup failed",
			slog.String("recording_id", id), slog.Any("error", err))
		abortError(c, http.StatusInternalServerError, "lookup failed")
		return
	}
	if attempt == nil {
		abortError(c, http.StatusNotFound, "not found")
		return
	}
	c.File(s.pipeline.AbsolutePath(attempt.RawPath))
}
