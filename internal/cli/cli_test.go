package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"treasury/internal/report"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tok-cli","user":{"username":"ops"}}`))
	})
	mux.HandleFunc("/api/report/getUtilzationbyBank", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "tok-cli" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[
			{"bankName":"Alpha","limit":1000000,"balanceOnDate":250000,"utilizePercent":25},
			{"bankName":"Beta","limit":"500000","balanceOnDate":100000,"utilizePercent":20}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("TREASURY_API_TOKEN", "")
	t.Setenv("TREASURY_USERNAME", "")
	t.Setenv("TREASURY_PASSWORD", "")

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestKinds(t *testing.T) {
	out, _, err := run(t, "kinds")
	require.NoError(t, err)
	for _, def := range report.Definitions() {
		assert.Contains(t, out, def.Slug)
	}
}

func TestReportWithToken(t *testing.T) {
	srv := fakeAPI(t)

	out, _, err := run(t, "report", "bank-utilization", "--api", srv.URL, "--token", "tok-cli", "--date", "2024-06-30")
	require.NoError(t, err)
	assert.Contains(t, out, "Bank Utilization Report, 2024-06-30")
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "BDT 10,00,000.00")
	assert.Contains(t, out, "BDT 15,00,000.00")
	assert.Contains(t, out, "Total")
}

func TestReportAbbreviatedWithSignIn(t *testing.T) {
	srv := fakeAPI(t)

	out, _, err := run(t, "report", "bank-utilization", "--api", srv.URL,
		"--username", "ops", "--password", "secret", "--date", "2024-06-30", "--abbreviate")
	require.NoError(t, err)
	assert.Contains(t, out, "10L")
	assert.Contains(t, out, "2.5L")
	assert.Contains(t, out, "15L")
	assert.NotContains(t, out, "BDT 10,00,000.00")
}

func TestReportNeedsCredentials(t *testing.T) {
	srv := fakeAPI(t)

	_, _, err := run(t, "report", "bank-utilization", "--api", srv.URL, "--date", "2024-06-30")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestReportRequiresDate(t *testing.T) {
	_, _, err := run(t, "report", "bank-utilization", "--token", "x")
	require.Error(t, err)
}

func TestUnknownKind(t *testing.T) {
	_, _, err := run(t, "report", "nope", "--token", "x", "--date", "2024-06-30")
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrUnknownKind)
	assert.Equal(t, 2, exitCode(err))
}

func TestExportWritesWorkbook(t *testing.T) {
	srv := fakeAPI(t)
	path := filepath.Join(t.TempDir(), "out.xlsx")

	out, _, err := run(t, "export", "bank-utilization", "--api", srv.URL, "--token", "tok-cli",
		"--date", "2024-06-30", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 2 rows")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Bank Utilization")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Bank Name", "Limit", "Balance on Date", "Utilize Percent"}, rows[0])
	assert.Equal(t, "Beta", rows[2][0])
}

func TestExportWarnsOnUnparseableNumber(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/report/getUtilzationbyBank", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"bankName":"Alpha","limit":"n/a","balanceOnDate":1,"utilizePercent":1}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	path := filepath.Join(t.TempDir(), "out.xlsx")

	out, errOut, err := run(t, "export", "bank-utilization", "--api", srv.URL, "--token", "tok-cli",
		"--date", "2024-06-30", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 1 rows")
	assert.Contains(t, errOut, "warning: row 1, Limit: not a finite number")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(assert.AnError))
}
