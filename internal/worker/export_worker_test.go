package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"treasury/internal/amqp"
	"treasury/internal/export"
	"treasury/internal/report"
	"treasury/internal/session"
	"treasury/internal/sheets/memory"
)

type memJobs struct {
	mu      sync.Mutex
	jobs    map[string]*export.Job
	failGet error
}

func newMemJobs(jobs ...*export.Job) *memJobs {
	m := &memJobs{jobs: make(map[string]*export.Job)}
	for _, j := range jobs {
		if j.Status == "" {
			j.Status = export.JobQueued
		}
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) CreateJob(_ context.Context, j *export.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
	return nil
}

func (m *memJobs) GetJob(_ context.Context, id string) (*export.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, export.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) ListJobs(_ context.Context, sessionID string, _ int) ([]export.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []export.Job
	for _, j := range m.jobs {
		if j.SessionID == sessionID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memJobs) ListJobsByStatus(_ context.Context, status export.JobStatus, _ int) ([]export.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []export.Job
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *memJobs) UpdateJob(_ context.Context, id string, status export.JobStatus, ref, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return export.ErrJobNotFound
	}
	j.Status, j.Ref, j.Error = status, ref, errMsg
	return nil
}

type fakeFetcher struct {
	body  []byte
	err   error
	token string
	calls int
}

func (f *fakeFetcher) FetchReport(_ context.Context, _ report.Definition, _ string, token string) ([]byte, error) {
	f.calls++
	f.token = token
	return f.body, f.err
}

const bankBody = `[
	{"bankName":"Alpha","limit":1000,"balanceOnDate":500,"utilizePercent":50},
	{"bankName":"Beta","limit":2000,"balanceOnDate":1000,"utilizePercent":50}
]`

func newTestWorker(t *testing.T, jobs *memJobs, fetcher *fakeFetcher) (*ExportWorker, *session.MemoryStore, *memory.Store) {
	t.Helper()
	sessions := session.NewMemoryStore()
	require.NoError(t, sessions.SaveSession(context.Background(), &session.Session{
		ID: "s-1", Token: "tok-1", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}))
	pub := memory.New()
	w := NewExportWorker(Config{
		Jobs:      jobs,
		Sessions:  sessions,
		Fetcher:   fetcher,
		Publisher: pub,
		ExportDir: t.TempDir(),
	})
	return w, sessions, pub
}

func TestHandleExportRequested_WritesXLSX(t *testing.T) {
	jobs := newMemJobs(&export.Job{ID: "j-1", SessionID: "s-1", Kind: report.BankUtilization, Date: "2024-06-30", Target: export.TargetXLSX})
	fetcher := &fakeFetcher{body: []byte(bankBody)}
	w, _, _ := newTestWorker(t, jobs, fetcher)

	msg := amqp.NewExportRequested("j-1", report.BankUtilization, "2024-06-30", export.TargetXLSX)
	require.NoError(t, w.HandleExportRequested(context.Background(), msg))

	job, err := jobs.GetJob(context.Background(), "j-1")
	require.NoError(t, err)
	assert.Equal(t, export.JobDone, job.Status)
	assert.Equal(t, "tok-1", fetcher.token)
	assert.Equal(t, JobFilePath(w.exportDir, job), job.Ref)
	assert.Contains(t, job.Ref, "bank-utilization-2024-06-30-j-1.xlsx")

	f, err := excelize.OpenFile(job.Ref)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Bank Utilization")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Bank Name", rows[0][0])
	assert.Equal(t, "Beta", rows[2][0])
}

func TestHandleExportRequested_PublishesToSheets(t *testing.T) {
	jobs := newMemJobs(&export.Job{ID: "j-2", SessionID: "s-1", Kind: report.BankUtilization, Date: "2024-06-30", Target: export.TargetSheets})
	w, _, pub := newTestWorker(t, jobs, &fakeFetcher{body: []byte(bankBody)})

	require.NoError(t, w.HandleExportRequested(context.Background(), &amqp.ExportRequested{JobID: "j-2"}))

	job, _ := jobs.GetJob(context.Background(), "j-2")
	assert.Equal(t, export.JobDone, job.Status)
	tbl, ok := pub.Table("bank-utilization-2024-06-30")
	require.True(t, ok)
	assert.Len(t, tbl.Rows, 2)
	assert.Equal(t, job.Ref, "mem:bank-utilization-2024-06-30!3")
}

func TestHandleExportRequested_UnparseableNumberLeavesCellEmpty(t *testing.T) {
	jobs := newMemJobs(&export.Job{ID: "j-nan", SessionID: "s-1", Kind: report.BankUtilization, Date: "2024-06-30", Target: export.TargetXLSX})
	body := `[{"bankName":"Alpha","limit":"n/a","balanceOnDate":500,"utilizePercent":50}]`
	w, _, _ := newTestWorker(t, jobs, &fakeFetcher{body: []byte(body)})

	require.NoError(t, w.HandleExportRequested(context.Background(), &amqp.ExportRequested{JobID: "j-nan"}))

	job, _ := jobs.GetJob(context.Background(), "j-nan")
	require.Equal(t, export.JobDone, job.Status)

	f, err := excelize.OpenFile(job.Ref)
	require.NoError(t, err)
	defer f.Close()
	limit, err := f.GetCellValue("Bank Utilization", "B2")
	require.NoError(t, err)
	assert.Empty(t, limit)
}

func TestHandleExportRequested_FetchFailureMarksFailed(t *testing.T) {
	jobs := newMemJobs(&export.Job{ID: "j-3", SessionID: "s-1", Kind: report.InterestRate, Date: "2024-06-30", Target: export.TargetXLSX})
	w, _, _ := newTestWorker(t, jobs, &fakeFetcher{err: errors.New("upstream down")})

	require.NoError(t, w.HandleExportRequested(context.Background(), &amqp.ExportRequested{JobID: "j-3"}))

	job, _ := jobs.GetJob(context.Background(), "j-3")
	assert.Equal(t, export.JobFailed, job.Status)
	assert.Contains(t, job.Error, "upstream down")
}

func TestHandleExportRequested_ExpiredSession(t *testing.T) {
	jobs := newMemJobs(&export.Job{ID: "j-4", SessionID: "s-old", Kind: report.InterestRate, Date: "2024-06-30"})
	fetcher := &fakeFetcher{body: []byte(`[]`)}
	w, sessions, _ := newTestWorker(t, jobs, fetcher)
	require.NoError(t, sessions.SaveSession(context.Background(), &session.Session{
		ID: "s-old", Token: "t", CreatedAt: time.Now().Add(-2 * time.Hour), ExpiresAt: time.Now().Add(-time.Hour),
	}))

	require.NoError(t, w.HandleExportRequested(context.Background(), &amqp.ExportRequested{JobID: "j-4"}))

	job, _ := jobs.GetJob(context.Background(), "j-4")
	assert.Equal(t, export.JobFailed, job.Status)
	assert.Zero(t, fetcher.calls)
}

func TestHandleExportRequested_TerminalAndUnknownJobsAreSkipped(t *testing.T) {
	jobs := newMemJobs(&export.Job{ID: "done", SessionID: "s-1", Kind: report.InterestRate, Date: "2024-06-30", Status: export.JobDone, Ref: "keep"})
	fetcher := &fakeFetcher{}
	w, _, _ := newTestWorker(t, jobs, fetcher)

	require.NoError(t, w.HandleExportRequested(context.Background(), &amqp.ExportRequested{JobID: "done"}))
	require.NoError(t, w.HandleExportRequested(context.Background(), &amqp.ExportRequested{JobID: "missing"}))

	job, _ := jobs.GetJob(context.Background(), "done")
	assert.Equal(t, "keep", job.Ref)
	assert.Zero(t, fetcher.calls)
}

func TestHandleExportRequested_StoreErrorIsReturned(t *testing.T) {
	jobs := newMemJobs()
	jobs.failGet = errors.New("database is locked")
	w, _, _ := newTestWorker(t, jobs, &fakeFetcher{})

	err := w.HandleExportRequested(context.Background(), &amqp.ExportRequested{JobID: "j"})
	assert.Error(t, err)
}

func TestHandleExportRequested_SheetsNotConfigured(t *testing.T) {
	jobs := newMemJobs(&export.Job{ID: "j-5", SessionID: "s-1", Kind: report.BankUtilization, Date: "2024-06-30", Target: export.TargetSheets})
	w, _, _ := newTestWorker(t, jobs, &fakeFetcher{body: []byte(bankBody)})
	w.publisher = nil

	require.NoError(t, w.HandleExportRequested(context.Background(), &amqp.ExportRequested{JobID: "j-5"}))
	job, _ := jobs.GetJob(context.Background(), "j-5")
	assert.Equal(t, export.JobFailed, job.Status)
}

func TestStartupCheck(t *testing.T) {
	jobs := newMemJobs(
		&export.Job{ID: "a", Status: export.JobRunning},
		&export.Job{ID: "b", Status: export.JobQueued},
	)
	w, _, _ := newTestWorker(t, jobs, &fakeFetcher{})

	require.NoError(t, w.StartupCheck(context.Background()))

	a, _ := jobs.GetJob(context.Background(), "a")
	b, _ := jobs.GetJob(context.Background(), "b")
	assert.Equal(t, export.JobFailed, a.Status)
	assert.Equal(t, export.JobQueued, b.Status)
}
