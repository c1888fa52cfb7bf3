// Package billstore keeps the bills that were already collected along with
// their documents, so that later runs only download what is new.
package billstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mediapart-bills/internal/billing"
	"mediapart-bills/internal/components/assert"
	"mediapart-bills/internal/components/chrono"
	"mediapart-bills/internal/components/telemetry"
	"mediapart-bills/internal/db"

	"github.com/google/uuid"
)

const (
	report_store_save_bill  = "store.save-bill"
	report_store_skip_bill  = "store.skip-bill"
	report_store_record_run = "store.record-run"
)

var (
	ErrUnknownKey    = errors.New("unknown record field")
	ErrOutsideFolder = errors.New("file would be written outside the bills folder")
)

// Downloader fetches the document of a bill.
type Downloader interface {
	Download(ctx context.Context, record billing.Record) ([]byte, error)
}

type SaveOptions struct {
	// Keys are the record fields (by their json name) that identify a bill.
	Keys []string
	// Identifiers are stored with every new bill, they are matched against
	// the labels of bank operations.
	Identifiers []string
}

type SaveSummary struct {
	Saved   int
	Skipped int
}

type Store struct {
	qry    *db.Queries
	makeTx db.MakeTx
	time   chrono.API
	tel    telemetry.API
}

func NewStore(sqldb *sql.DB, time chrono.API, tel telemetry.API) Store {
	assert.NotNil(sqldb, "db")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "tel")

	return Store{
		qry:    db.New(sqldb),
		makeTx: db.NewMakeTx(sqldb),
		time:   time,
		tel:    telemetry.NewScopedAPI("billstore", tel),
	}
}

func recordField(record billing.Record, key string) (string, error) {
	switch key {
	case "vendor":
		return record.Vendor, nil
	case "billId":
		return record.BillId, nil
	case "title":
		return record.Title, nil
	case "startDate":
		return record.StartDate, nil
	case "endDate":
		return record.EndDate, nil
	case "date":
		return billing.FormatDate(record.Date), nil
	case "amount":
		return strconv.FormatFloat(record.Amount, 'f', 2, 64), nil
	case "currency":
		return record.Currency, nil
	case "filename":
		return record.Filename, nil
	case "fileurl":
		return record.FileUrl, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// DedupKey joins the values of `keys` in `record`.
func DedupKey(record billing.Record, keys []string) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("no dedup keys")
	}
	values := make([]string, len(keys))
	for i, key := range keys {
		value, err := recordField(record, key)
		if err != nil {
			return "", err
		}
		values[i] = value
	}
	return strings.Join(values, "/"), nil
}

// billPath returns where the document of `record` goes in `folder`.
func billPath(folder string, record billing.Record) (string, error) {
	path := filepath.Join(folder, record.Filename)
	rel, err := filepath.Rel(folder, path)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideFolder, record.Filename)
	}
	return path, nil
}

func (s Store) saveBill(ctx context.Context, key, path, runId string, record billing.Record, identifiers []string) error {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return err
	}
	defer discard()

	err = tx.InsertBill(ctx, db.Bill{
		DedupKey:    key,
		Vendor:      record.Vendor,
		BillID:      record.BillId,
		Title:       record.Title,
		StartDate:   record.StartDate,
		EndDate:     record.EndDate,
		Date:        record.Date.Unix(),
		Amount:      record.Amount,
		Currency:    record.Currency,
		Filename:    record.Filename,
		Fileurl:     record.FileUrl,
		FilePath:    path,
		ExtractedAt: record.Metadata.Date.Unix(),
		Version:     int64(record.Metadata.Version),
		RunID:       runId,
	})
	if err != nil {
		return err
	}
	for _, identifier := range identifiers {
		err = tx.InsertBillIdentifier(ctx, db.InsertBillIdentifierParams{
			DedupKey:   key,
			Identifier: identifier,
		})
		if err != nil {
			return err
		}
	}
	return commit()
}

// SaveBills downloads the document of every record that is not stored yet
// into `folder` and stores the record. A record whose download fails is not
// stored, so that the next run tries again; the failures are joined in the
// returned error.
func (s Store) SaveBills(
	ctx context.Context,
	runId string,
	folder string,
	records []billing.Record,
	opts SaveOptions,
	downloader Downloader,
) (SaveSummary, error) {
	assert.NotNil(downloader, "downloader")

	err := os.MkdirAll(folder, 0777)
	if err != nil {
		return SaveSummary{}, fmt.Errorf("create bills folder: %w", err)
	}

	var summary SaveSummary
	var errs []error
	for _, record := range records {
		key, err := DedupKey(record, opts.Keys)
		if err != nil {
			return summary, err
		}
		path, err := billPath(folder, record)
		if err != nil {
			s.tel.ReportBroken(report_store_save_bill, err, key)
			errs = append(errs, fmt.Errorf("save %s: %w", record.BillId, err))
			continue
		}
		exists, err := s.qry.BillExists(ctx, key)
		if err != nil {
			return summary, fmt.Errorf("check bill %s: %w", key, err)
		}
		if exists {
			s.tel.ReportDebug(report_store_skip_bill, key)
			summary.Skipped++
			continue
		}

		contents, err := downloader.Download(ctx, record)
		if err != nil {
			s.tel.ReportWarning(report_store_save_bill, fmt.Errorf("download: %w", err), key)
			errs = append(errs, fmt.Errorf("download %s: %w", record.BillId, err))
			continue
		}
		err = os.WriteFile(path, contents, 0666)
		if err != nil {
			s.tel.ReportBroken(report_store_save_bill, fmt.Errorf("write file: %w", err), path)
			errs = append(errs, fmt.Errorf("write %s: %w", path, err))
			continue
		}

		err = s.saveBill(ctx, key, path, runId, record, opts.Identifiers)
		if err != nil {
			s.tel.ReportBroken(report_store_save_bill, fmt.Errorf("insert: %w", err), key)
			return summary, fmt.Errorf("store bill %s: %w", key, err)
		}
		s.tel.ReportDebug(report_store_save_bill, key, path)
		summary.Saved++
	}

	s.tel.ReportCount(report_store_save_bill, int64(summary.Saved))
	return summary, errors.Join(errs...)
}

// StoredBill is a bill as it was saved.
type StoredBill struct {
	billing.Record
	DedupKey string
	FilePath string
	RunId    string
}

func fromRow(row db.Bill) StoredBill {
	return StoredBill{
		Record: billing.Record{
			Title:     row.Title,
			Vendor:    row.Vendor,
			BillId:    row.BillID,
			StartDate: row.StartDate,
			EndDate:   row.EndDate,
			Date:      time.Unix(row.Date, 0).UTC(),
			Amount:    row.Amount,
			Currency:  row.Currency,
			Filename:  row.Filename,
			FileUrl:   row.Fileurl,
			Metadata: billing.Metadata{
				Date:    time.Unix(row.ExtractedAt, 0).UTC(),
				Version: int(row.Version),
			},
		},
		DedupKey: row.DedupKey,
		FilePath: row.FilePath,
		RunId:    row.RunID,
	}
}

// List returns the bills of `vendor` ordered by date, every vendor when
// `vendor` is empty.
func (s Store) List(ctx context.Context, vendor string) ([]StoredBill, error) {
	var rows []db.Bill
	var err error
	if vendor == "" {
		rows, err = s.qry.ListAllBills(ctx)
	} else {
		rows, err = s.qry.ListBills(ctx, vendor)
	}
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}

	out := make([]StoredBill, len(rows))
	for i, row := range rows {
		out[i] = fromRow(row)
	}
	return out, nil
}

// RunSummary describes one collection run.
type RunSummary struct {
	Id        string
	Vendor    string
	StartedAt time.Time
	Era       string
	Saved     int
	Skipped   int
	Failures  int
	Err       error
}

// NewRunId returns a fresh identifier for a collection run.
func NewRunId() string {
	return uuid.NewString()
}

// RecordRun stores `run`, an id is generated when it has none. It returns the id.
func (s Store) RecordRun(ctx context.Context, run RunSummary) (string, error) {
	if run.Id == "" {
		run.Id = NewRunId()
	}
	message := ""
	if run.Err != nil {
		message = run.Err.Error()
	}

	err := s.qry.InsertRun(ctx, db.Run{
		ID:         run.Id,
		Vendor:     run.Vendor,
		StartedAt:  run.StartedAt.Unix(),
		FinishedAt: s.time.Now().Unix(),
		Era:        run.Era,
		Saved:      int64(run.Saved),
		Skipped:    int64(run.Skipped),
		Failures:   int64(run.Failures),
		Error:      message,
	})
	if err != nil {
		s.tel.ReportBroken(report_store_record_run, err, run.Id)
		return "", fmt.Errorf("record run: %w", err)
	}
	return run.Id, nil
}

// Runs returns the latest runs, newest first.
func (s Store) Runs(ctx context.Context, limit int) ([]db.Run, error) {
	return s.qry.ListRuns(ctx, int64(limit))
}
