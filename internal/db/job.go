package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/gatewaylab/gatewaybench/internal/workload"
)

const jobsTableName = "workload_jobs"

var jobColumns = []string{
	"id", "status", "started_at", "finished_at", "error_message", "params",
	"html_report_path", "csv_prefix_path", "log", "summary",
}

// JobStore implements workload.Store on a SQLite database.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Put(ctx context.Context, job workload.Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return err
	}
	logLines := job.Log
	if logLines == nil {
		logLines = []string{}
	}
	log, err := json.Marshal(logLines)
	if err != nil {
		return err
	}
	var finishedAt, summary interface{}
	if job.FinishedAt != nil {
		finishedAt = job.FinishedAt.UnixNano()
	}
	if job.Summary != nil {
		encoded, err := json.Marshal(job.Summary)
		if err != nil {
			return err
		}
		summary = string(encoded)
	}

	query := sq.Replace(jobsTableName).
		Columns(jobColumns...).
		Values(
			job.ID, string(job.Status), job.StartedAt.UnixNano(), finishedAt, job.ErrorMessage,
			string(params), job.HTMLReportPath, job.CSVPrefixPath, string(log), summary,
		).
		RunWith(s.db)
	_, err = query.ExecContext(ctx)
	return errors.Wrapf(err, "store job %s", job.ID)
}

func (s *JobStore) Get(ctx context.Context, id string) (workload.Job, error) {
	rows, err := sq.Select(jobColumns...).
		From(jobsTableName).
		Where(sq.Eq{"id": id}).
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return workload.Job{}, errors.Wrapf(err, "query job %s", id)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return workload.Job{}, err
		}
		return workload.Job{}, workload.ErrNotFound
	}
	return scanJob(rows)
}

func (s *JobStore) List(ctx context.Context) ([]workload.Job, error) {
	rows, err := sq.Select(jobColumns...).
		From(jobsTableName).
		OrderBy("started_at DESC").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "query jobs")
	}
	defer rows.Close()
	jobs := []workload.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(rows *sql.Rows) (workload.Job, error) {
	var (
		job        workload.Job
		status     string
		startedAt  int64
		finishedAt sql.NullInt64
		params     string
		log        string
		summary    sql.NullString
	)
	err := rows.Scan(
		&job.ID, &status, &startedAt, &finishedAt, &job.ErrorMessage, &params,
		&job.HTMLReportPath, &job.CSVPrefixPath, &log, &summary,
	)
	if err != nil {
		return workload.Job{}, errors.Wrap(err, "scan job")
	}
	job.Status = workload.Status(status)
	job.StartedAt = time.Unix(0, startedAt).UTC()
	if finishedAt.Valid {
		finished := time.Unix(0, finishedAt.Int64).UTC()
		job.FinishedAt = &finished
	}
	if err := json.Unmarshal([]byte(params), &job.Params); err != nil {
		return workload.Job{}, errors.Wrapf(err, "decode params of job %s", job.ID)
	}
	if err := json.Unmarshal([]byte(log), &job.Log); err != nil {
		return workload.Job{}, errors.Wrapf(err, "decode log of job %s", job.ID)
	}
	if summary.Valid {
		job.Summary = &workload.Result{}
		if err := json.Unmarshal([]byte(summary.String), job.Summary); err != nil {
			return workload.Job{}, errors.Wrapf(err, "decode summary of job %s", job.ID)
		}
	}
	return job, nil
}
