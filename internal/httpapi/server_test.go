package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/chenxu-corpus/chenxuvox/internal/audio"
	"github.com/chenxu-corpus/chenxuvox/internal/corpus"
	"github.com/chenxu-corpus/chenxuvox/internal/dataset"
	"github.com/chenxu-corpus/chenxuvox/internal/health"
	"github.com/chenxu-corpus/chenxuvox/internal/observe"
	"github.com/chenxu-corpus/chenxuvox/internal/recording"
	"github.com/chenxu-corpus/chenxuvox/pkg/textgen"
	"github.com/chenxu-corpus/chenxuvox/pkg/textgen/mock"
)

// ---------------------------------------------------------------------------
// Test helpers: stub collaborators
// ---------------------------------------------------------------------------

func ptr(v float64) *float64 { return &v }

type stubTranscoder struct{}

func (s *stubTranscoder) Standardize(_ context.Context, _, outPath string) error {
	return os.WriteFile(outPath, []byte("RIFF standardized"), 0o644)
}

type stubAnalyzer struct {
	m *audio.Metrics
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ string) (*audio.Metrics, error) {
	return s.m, nil
}

// memRecStore is an in-memory recording.Store.
type memRecStore struct {
	mu       sync.Mutex
	attempts map[string]*recording.Attempt
}

func newMemRecStore() *memRecStore {
	return &memRecStore{attempts: make(map[string]*recording.Attempt)}
}

func (m *memRecStore) Create(_ context.Context, a *recording.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *memRecStore) Get(_ context.Context, id string) (*recording.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memRecStore) PromptCounts(_ context.Context, speakerID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, a := range m.attempts {
		if a.SpeakerID == speakerID {
			counts[a.PromptID]++
		}
	}
	return counts, nil
}

// memCorpusStore is an in-memory corpus.Store.
type memCorpusStore struct {
	mu      sync.Mutex
	staged  []corpus.Candidate
	prompts []corpus.Prompt
}

func (m *memCorpusStore) StageCandidates(_ context.Context, cs []corpus.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = append(m.staged, cs...)
	return nil
}

func (m *memCorpusStore) ApproveCandidates(_ context.Context, ids []string) (int, error) {
	return len(ids), nil
}

func (m *memCorpusStore) RejectCandidates(_ context.Context, ids []string) (int, error) {
	return len(ids), nil
}

func (m *memCorpusStore) ListCandidates(_ context.Context, status corpus.CandidateStatus) ([]corpus.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []corpus.Candidate
	for _, c := range m.staged {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCorpusStore) ImportPrompts(_ context.Context, ps []corpus.Prompt) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, ps...)
	return len(ps), nil
}

func (m *memCorpusStore) ListPrompts(_ context.Context) ([]corpus.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]corpus.Prompt(nil), m.prompts...), nil
}

func (m *memCorpusStore) GetPrompt(_ context.Context, id string) (*corpus.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.prompts {
		if m.prompts[i].ID == id {
			cp := m.prompts[i]
			return &cp, nil
		}
	}
	return nil, nil
}

// emptyRows implements pgx.Rows with no data for the export stub.
type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(...any) error                            { return nil }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }

type stubExportDB struct{}

func (stubExportDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return emptyRows{}, nil
}

type testEnv struct {
	server   *Server
	recStore *memRecStore
	cStore   *memCorpusStore
	dataDir  string
}

func newTestEnv(t *testing.T, gen textgen.Generator) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics() unexpected error: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	recStore := newMemRecStore()
	dataDir := t.TempDir()
	an := &stubAnalyzer{m: &audio.Metrics{
		PeakDbfs:        ptr(-3.4),
		RMSDbfs:         ptr(-21.5),
		SNRDb:           ptr(18.5),
		SilenceDuration: 0.95,
	}}
	pipeline, err := recording.NewPipeline(&stubTranscoder{}, an, recStore, dataDir, metrics, log)
	if err != nil {
		t.Fatalf("NewPipeline() unexpected error: %v", err)
	}

	cStore := &memCorpusStore{}
	opts := []corpus.Option{corpus.WithMetrics(metrics), corpus.WithLogger(log)}
	if gen != nil {
		opts = append(opts, corpus.WithGenerator(gen))
	}
	svc := corpus.NewService(cStore, recStore, opts...)

	server := New(Deps{
		Pipeline:   pipeline,
		Recordings: recStore,
		Corpus:     svc,
		Exporter:   dataset.NewExporter(stubExportDB{}, dataDir, log),
		Health:     health.New(health.DataDir(dataDir)),
		Metrics:    metrics,
		Logger:     log,
	})
	return &testEnv{server: server, recStore: recStore, cStore: cStore, dataDir: dataDir}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, strings.NewReader(body), "application/json")
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func multipartUpload(t *testing.T, fields map[string]string, fileContent string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileContent != "" {
		fw, err := mw.CreateFormFile("file", "take.webm")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(fileContent)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

// ---------------------------------------------------------------------------
// Recording endpoints
// ---------------------------------------------------------------------------

func TestUploadRecording(t *testing.T) {
	t.Parallel()

	t.Run("accepted take", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)
		body, ct := multipartUpload(t, map[string]string{
			"paragraphId": "para-1",
			"speakerId":   "spk-1",
		}, "webm bytes")

		w := env.do(t, http.MethodPost, "/api/recordings/upload", body, ct)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}

		res := decodeBody[uploadResponse](t, w)
		if res.RecordingID == "" {
			t.Error("recordingId is empty")
		}
		if string(res.Status) != "accepted" {
			t.Errorf("status = %q, want accepted", res.Status)
		}
		if res.FileURL != "/api/recordings/"+res.RecordingID+"/download" {
			t.Errorf("fileUrl = %q", res.FileURL)
		}
		if res.Metrics.DBFS != -21.5 {
			t.Errorf("dbFS = %v, want -21.5", res.Metrics.DBFS)
		}
		if res.Metrics.SNRDb == nil || *res.Metrics.SNRDb != 18.5 {
			t.Errorf("snrDb = %v, want 18.5", res.Metrics.SNRDb)
		}
		if res.Metrics.Clipping {
			t.Error("clipping should be false")
		}

		stored, err := env.recStore.Get(context.Background(), res.RecordingID)
		if err != nil || stored == nil {
			t.Fatalf("stored attempt lookup = (%v, %v)", stored, err)
		}
		if stored.PromptID != "para-1" || stored.SpeakerID != "spk-1" {
			t.Errorf("stored = %+v", stored)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)
		body, ct := multipartUpload(t, map[string]string{"paragraphId": "para-1"}, "")

		w := env.do(t, http.MethodPost, "/api/recordings/upload", body, ct)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestDownloadRecording(t *testing.T) {
	t.Parallel()

	t.Run("serves raw file", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)

		rel := filepath.Join("raw", "rec-1.webm")
		if err := os.WriteFile(filepath.Join(env.dataDir, rel), []byte("raw audio"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := env.recStore.Create(context.Background(), &recording.Attempt{
			ID: "rec-1", PromptID: "p", SpeakerID: "s", RawPath: rel, Status: "accepted",
		}); err != nil {
			t.Fatal(err)
		}

		w := env.do(t, http.MethodGet, "/api/recordings/rec-1/download", nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if w.Body.String() != "raw audio" {
			t.Errorf("body = %q, want raw audio", w.Body.String())
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)
		w := env.do(t, http.MethodGet, "/api/recordings/nope/download", nil, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// Corpus endpoints
// ---------------------------------------------------------------------------

func TestNextPrompt(t *testing.T) {
	t.Parallel()

	t.Run("returns prompt with progress", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)
		env.cStore.prompts = []corpus.Prompt{
			{ID: "p-1", Content: "今天赶场克", Category: "daily", DifficultyScore: 2},
		}

		w := env.do(t, http.MethodGet, "/api/corpus/next?speakerId=spk-1", nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		res := decodeBody[map[string]json.RawMessage](t, w)
		for _, key := range []string{"paragraph", "difficulty", "estimatedDuration", "progress"} {
			if _, ok := res[key]; !ok {
				t.Errorf("response missing %q: %s", key, w.Body.String())
			}
		}
	})

	t.Run("empty corpus", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)
		w := env.do(t, http.MethodGet, "/api/corpus/next", nil, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestListPrompts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.cStore.prompts = []corpus.Prompt{
		{ID: "p-1", Content: "一"}, {ID: "p-2", Content: "二"}, {ID: "p-3", Content: "三"},
	}

	w := env.do(t, http.MethodGet, "/api/corpus/list?limit=2", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decodeBody[promptList](t, w)
	if res.Total != 3 || len(res.Items) != 2 {
		t.Errorf("total = %d items = %d, want 3/2", res.Total, len(res.Items))
	}

	if w := env.do(t, http.MethodGet, "/api/corpus/list?limit=zero", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid limit status = %d, want 400", w.Code)
	}
}

func TestGenerateCorpus(t *testing.T) {
	t.Parallel()

	reqBody := `{"topic":"赶场","difficulty":"medium","count":2}`

	t.Run("stages and returns batch", func(t *testing.T) {
		t.Parallel()
		gen := &mock.Generator{Response: &textgen.Response{
			Content: `{"sentences":["白石十一实不","今天天气很好"]}`,
		}}
		env := newTestEnv(t, gen)

		w := env.doJSON(t, http.MethodPost, "/api/corpus/generate", reqBody)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		res := decodeBody[corpus.GenerateResult](t, w)
		if res.Summary.Total != 2 {
			t.Errorf("summary.total = %d, want 2", res.Summary.Total)
		}
		if len(env.cStore.staged) != 2 {
			t.Errorf("staged = %d, want 2", len(env.cStore.staged))
		}
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)
		w := env.doJSON(t, http.MethodPost, "/api/corpus/generate", reqBody)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})

	t.Run("invalid request", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, &mock.Generator{})
		w := env.doJSON(t, http.MethodPost, "/api/corpus/generate", `{"topic":"","difficulty":"medium"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, &mock.Generator{Err: context.DeadlineExceeded})
		w := env.doJSON(t, http.MethodPost, "/api/corpus/generate", reqBody)
		if w.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", w.Code)
		}
	})
}

func TestApproveReject(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	w := env.doJSON(t, http.MethodPost, "/api/corpus/approve", `{"ids":["a","b"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("approve status = %d", w.Code)
	}
	if res := decodeBody[map[string]int](t, w); res["approved"] != 2 {
		t.Errorf("approved = %d, want 2", res["approved"])
	}

	w = env.doJSON(t, http.MethodPost, "/api/corpus/reject", `{"ids":["c"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reject status = %d", w.Code)
	}
	if res := decodeBody[map[string]int](t, w); res["rejected"] != 1 {
		t.Errorf("rejected = %d, want 1", res["rejected"])
	}

	if w := env.doJSON(t, http.MethodPost, "/api/corpus/approve", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing ids status = %d, want 400", w.Code)
	}
}

func TestAnalyzeText(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	w := env.doJSON(t, http.MethodPost, "/api/corpus/analyze", `{"text":"赶场要恰白崽伢子的饭"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	res := decodeBody[analyzeResponse](t, w)
	if res.Analysis.Score != 20 {
		t.Errorf("score = %d, want 20", res.Analysis.Score)
	}
	if len(res.Heatmap) != 10 {
		t.Errorf("heatmap cells = %d, want 10", len(res.Heatmap))
	}
	if len(res.Pinyin) != 10 {
		t.Errorf("pinyin = %v, want 10 syllables", res.Pinyin)
	}

	if w := env.doJSON(t, http.MethodPost, "/api/corpus/analyze", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing text status = %d, want 400", w.Code)
	}
}

func TestCandidatesStatusFilter(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.cStore.staged = []corpus.Candidate{
		{ID: "c-1", Text: "白", Status: corpus.StatusPending},
		{ID: "c-2", Text: "竹", Status: corpus.StatusApproved},
	}

	w := env.do(t, http.MethodGet, "/api/corpus/candidates?status=pending", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decodeBody[struct {
		Total int                `json:"total"`
		Items []corpus.Candidate `json:"items"`
	}](t, w)
	if res.Total != 1 || res.Items[0].ID != "c-1" {
		t.Errorf("res = %+v, want only c-1", res)
	}

	if w := env.do(t, http.MethodGet, "/api/corpus/candidates?status=bogus", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("bogus status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Dataset and health endpoints
// ---------------------------------------------------------------------------

func TestExportDataset(t *testing.T) {
	t.Parallel()

	t.Run("empty archive", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)
		w := env.do(t, http.MethodGet, "/api/dataset/export", nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
			t.Errorf("Content-Type = %q, want application/zip", ct)
		}
		if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, dataset.ArchiveName) {
			t.Errorf("Content-Disposition = %q", cd)
		}
		zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
		if err != nil {
			t.Fatalf("invalid archive: %v", err)
		}
		if len(zr.File) != 1 || zr.File[0].Name != "manifest.jsonl" {
			t.Errorf("archive entries = %v, want only manifest", zr.File)
		}
	})

	t.Run("invalid minSnr", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)
		w := env.do(t, http.MethodGet, "/api/dataset/export?minSnr=loud", nil, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	if w := env.do(t, http.MethodGet, "/healthz", nil, ""); w.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/readyz", nil, ""); w.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", w.Code)
	}
}
