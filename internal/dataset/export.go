// Package dataset exports accepted recordings as a training archive: one WAV
// per recording plus a manifest.jsonl mapping each file to its prompt text.
package dataset

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"
)

// ArchiveName is the suggested download file name.
const ArchiveName = "chenxu_dataset.zip"

// DB is the subset of pgxpool.Pool used by the Exporter.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Filter narrows the exported set.
type Filter struct {
	// SpeakerID, when set, limits the export to one speaker.
	SpeakerID string

	// MinSNR, when set, drops recordings below the given signal to noise
	// ratio. Recordings without a measured SNR are dropped too.
	MinSNR *float64
}

// Exporter builds dataset archives.
type Exporter struct {
	db      DB
	dataDir string
	log     *slog.Logger
}

// NewExporter creates an exporter reading audio files relative to dataDir.
func NewExporter(db DB, dataDir string, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{db: db, dataDir: dataDir, log: log}
}

const exportSQL = `
SELECT r.id, r.processed_path, c.content
FROM recordings r
JOIN corpora c ON c.id = r.prompt_id
WHERE r.status = 'accepted' AND r.processed_path IS NOT NULL`

// manifestEntry is one line of manifest.jsonl.
type manifestEntry struct {
	Audio string `json:"audio"`
	Text  string `json:"text"`
}

// Export streams a ZIP archive of every accepted recording matching the
// filter to w. Recordings whose processed file is missing on disk are logged
// and skipped. Returns the number of recordings included.
func (e *Exporter) Export(ctx context.Context, w io.Writer, filter Filter) (int, error) {
	sql := exportSQL
	var args []any
	if filter.SpeakerID != "" {
		args = append(args, filter.SpeakerID)
		sql += fmt.Sprintf(" AND r.speaker_id = $%d", len(args))
	}
	if filter.MinSNR != nil {
		args = append(args, *filter.MinSNR)
		sql += fmt.Sprintf(" AND r.snr_db >= $%d", len(args))
	}
	sql += " ORDER BY r.created_at, r.id"

	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("dataset: export query: %w", err)
	}
	defer rows.Close()

	type exportRow struct {
		id, path, content string
	}
	var selected []exportRow
	for rows.Next() {
		var r exportRow
		if err := rows.Scan(&r.id, &r.path, &r.content); err != nil {
			return 0, fmt.Errorf("dataset: export scan: %w", err)
		}
		selected = append(selected, r)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("dataset: export: %w", err)
	}

	zw := zip.NewWriter(w)
	var manifest []manifestEntry
	included := 0
	for _, row := range selected {
		if err := ctx.Err(); err != nil {
			return included, err
		}

		audioPath := filepath.Join(e.dataDir, filepath.FromSlash(row.path))
		f, err := os.Open(audioPath)
		if err != nil {
			e.log.WarnContext(ctx, "skipping recording with missing audio file",
				slog.String("recording_id", row.id),
				slog.String("path", audioPath),
			)
			continue
		}

		entryName := "audio/" + row.id + ".wav"
		entry, err := zw.Create(entryName)
		if err != nil {
			f.Close()
			return included, fmt.Errorf("dataset: create archive entry %q: %w", entryName, err)
		}
		if _, err := io.Copy(entry, f); err != nil {
			f.Close()
			return included, fmt.Errorf("dataset: write archive entry %q: %w", entryName, err)
		}
		f.Close()

		manifest = append(manifest, manifestEntry{Audio: entryName, Text: row.content})
		included++
	}

	mf, err := zw.Create("manifest.jsonl")
	if err != nil {
		return included, fmt.Errorf("dataset: create manifest: %w", err)
	}
	for _, entry := range manifest {
		line, err := json.Marshal(entry)
		if err != nil {
			return included, fmt.Errorf("dataset: encode manifest entry: %w", err)
		}
		if _, err := mf.Write(append(line, '\n')); err != nil {
			return included, fmt.Errorf("dataset: write manifest: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return included, fmt.Errorf("dataset: finalize archive: %w", err)
	}

	e.log.InfoContext(ctx, "exported dataset archive",
		slog.Int("recordings", included),
		slog.Int("skipped", len(selected)-included),
	)
	return included, nil
}
