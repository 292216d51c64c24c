package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/example/order/internal/app"
	"github.com/tigerroll/chunkbatch/example/order/internal/job"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

const testConfig = `
system:
  logging:
    level: WARN
infrastructure:
  job_repository_type: sql
  job_repository_db_ref: app
database:
  app:
    type: sqlite
    database: %s
storage:
  exports:
    type: local
    base_dir: %s
app:
  setup_order_count: 4
`

func testOptions(t *testing.T) app.Options {
	t.Helper()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "orders.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	return app.Options{
		EnvFilePath: filepath.Join(dir, "missing.env"),
		Config:      []byte(fmt.Sprintf(testConfig, dsn, filepath.Join(dir, "exports"))),
		Resources:   os.DirFS(filepath.Join("..", "..", "cmd", "order", "resources")),
		DBAdaptors:  []string{"sqlite"},
	}
}

func execute(t *testing.T, opts app.Options, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := BuildCLI(opts)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestJobsCommand_ListsRegisteredJobs(t *testing.T) {
	out, err := execute(t, testOptions(t), "jobs")
	require.NoError(t, err)

	names := strings.Fields(out)
	for _, name := range []string{job.CsvToDbJob, job.OrderProcessJob, job.FaultTolerantJob, job.ParameterJob, job.SetupOrdersJob, job.MigrateJob} {
		assert.Contains(t, names, name)
	}
}

func TestRunCommand_PrintsReport(t *testing.T) {
	opts := testOptions(t)

	out, err := execute(t, opts, "run", job.SetupOrdersJob)
	require.NoError(t, err)
	var report model.ExecutionReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, job.SetupOrdersJob, report.JobName)
	assert.Equal(t, model.BatchStatusCompleted, report.Status)
	assert.Equal(t, 4, report.TotalWriteCount())
	assert.Contains(t, report.Parameters, "timestamp")

	out, err = execute(t, opts, "run", job.CsvToDbJob, "--no-timestamp")
	require.NoError(t, err)
	var untimed model.ExecutionReport
	require.NoError(t, json.Unmarshal([]byte(out), &untimed))
	assert.Equal(t, job.CsvToDbJob, untimed.JobName)
	assert.Equal(t, 10, untimed.TotalWriteCount(), "bundled sample customers")
	assert.NotContains(t, untimed.Parameters, "timestamp")

	_, err = execute(t, opts, "run", job.CsvToDbJob, "--no-timestamp")
	assert.Error(t, err, "a completed instance is not run again")
}

func TestRunCommand_RejectsBadParameters(t *testing.T) {
	_, err := execute(t, testOptions(t), "run", job.ParameterJob, "startDate(DATE)=yesterday")
	assert.ErrorContains(t, err, "invalid DATE value")

	_, err = execute(t, testOptions(t), "run", job.ParameterJob, "startDate(DATE)=2024-01-01")
	assert.ErrorContains(t, err, "invalid job parameters")
}

func TestMigrateCommand(t *testing.T) {
	opts := testOptions(t)

	out, err := execute(t, opts, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "COMPLETED"`)

	out, err = execute(t, opts, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, `"jobName": "migrateJob"`)
}
