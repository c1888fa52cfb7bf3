package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type Bill struct {
	DedupKey    string
	Vendor      string
	BillID      string
	Title       string
	StartDate   string
	EndDate     string
	Date        int64
	Amount      float64
	Currency    string
	Filename    string
	Fileurl     string
	FilePath    string
	ExtractedAt int64
	Version     int64
	RunID       string
}

const billColumns = `dedup_key, vendor, bill_id, title, start_date, end_date, date, amount,
currency, filename, fileurl, file_path, extracted_at, version, run_id`

func scanBill(row interface{ Scan(...any) error }) (Bill, error) {
	var b Bill
	err := row.Scan(
		&b.DedupKey,
		&b.Vendor,
		&b.BillID,
		&b.Title,
		&b.StartDate,
		&b.EndDate,
		&b.Date,
		&b.Amount,
		&b.Currency,
		&b.Filename,
		&b.Fileurl,
		&b.FilePath,
		&b.ExtractedAt,
		&b.Version,
		&b.RunID,
	)
	return b, err
}

const billExists = `select exists(select 1 from bills where dedup_key = ?)`

func (q *Queries) BillExists(ctx context.Context, dedupKey string) (bool, error) {
	row := q.db.QueryRowContext(ctx, billExists, dedupKey)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const insertBill = `insert into bills (` + billColumns + `)
values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertBill(ctx context.Context, arg Bill) error {
	_, err := q.db.ExecContext(ctx, insertBill,
		arg.DedupKey,
		arg.Vendor,
		arg.BillID,
		arg.Title,
		arg.StartDate,
		arg.EndDate,
		arg.Date,
		arg.Amount,
		arg.Currency,
		arg.Filename,
		arg.Fileurl,
		arg.FilePath,
		arg.ExtractedAt,
		arg.Version,
		arg.RunID,
	)
	return err
}

const listBills = `select ` + billColumns + ` from bills
where vendor = ?
order by date, bill_id`

func (q *Queries) ListBills(ctx context.Context, vendor string) ([]Bill, error) {
	rows, err := q.db.QueryContext(ctx, listBills, vendor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listAllBills = `select ` + billColumns + ` from bills order by date, bill_id`

func (q *Queries) ListAllBills(ctx context.Context) ([]Bill, error) {
	rows, err := q.db.QueryContext(ctx, listAllBills)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type InsertBillIdentifierParams struct {
	DedupKey   string
	Identifier string
}

const insertBillIdentifier = `insert or ignore into bill_identifiers (dedup_key, identifier)
values (?, ?)`

func (q *Queries) InsertBillIdentifier(ctx context.Context, arg InsertBillIdentifierParams) error {
	_, err := q.db.ExecContext(ctx, insertBillIdentifier, arg.DedupKey, arg.Identifier)
	return err
}

const listBillIdentifiers = `select dedup_key, identifier from bill_identifiers`

func (q *Queries) ListBillIdentifiers(ctx context.Context) ([]InsertBillIdentifierParams, error) {
	rows, err := q.db.QueryContext(ctx, listBillIdentifiers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []InsertBillIdentifierParams
	for rows.Next() {
		var i InsertBillIdentifierParams
		if err := rows.Scan(&i.DedupKey, &i.Identifier); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type Run struct {
	ID         string
	Vendor     string
	StartedAt  int64
	FinishedAt int64
	Era        string
	Saved      int64
	Skipped    int64
	Failures   int64
	Error      string
}

const insertRun = `insert into runs (id, vendor, started_at, finished_at, era, saved, skipped, failures, error)
values (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertRun(ctx context.Context, arg Run) error {
	_, err := q.db.ExecContext(ctx, insertRun,
		arg.ID,
		arg.Vendor,
		arg.StartedAt,
		arg.FinishedAt,
		arg.Era,
		arg.Saved,
		arg.Skipped,
		arg.Failures,
		arg.Error,
	)
	return err
}

const listRuns = `select id, vendor, started_at, finished_at, era, saved, skipped, failures, error
from runs
order by started_at desc
limit ?`

func (q *Queries) ListRuns(ctx context.Context, limit int64) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, listRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Run
	for rows.Next() {
		var r Run
		err := rows.Scan(
			&r.ID,
			&r.Vendor,
			&r.StartedAt,
			&r.FinishedAt,
			&r.Era,
			&r.Saved,
			&r.Skipped,
			&r.Failures,
			&r.Error,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
