package billstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediapart-bills/internal/billing"
	"mediapart-bills/internal/components/chrono"
	"mediapart-bills/internal/components/telemetry"
	"mediapart-bills/internal/db"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

type fakeDownloader struct {
	calls  []string
	broken map[string]bool
}

func (f *fakeDownloader) Download(_ context.Context, record billing.Record) ([]byte, error) {
	f.calls = append(f.calls, record.BillId)
	if f.broken[record.BillId] {
		return nil, errors.New("503 Service Unavailable")
	}
	return []byte("%PDF " + record.BillId), nil
}

func newTestStore(t *testing.T) (Store, *telemetry.Recorder) {
	sqldb, err := db.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })
	require.NoError(t, db.Migrate(context.Background(), sqldb))

	rec := &telemetry.Recorder{}
	return NewStore(sqldb, chrono.FixedImpl{At: testNow}, rec), rec
}

func testRecord(id string, end time.Time, amount float64) billing.Record {
	start := end.AddDate(0, -1, 1)
	fields := billing.Fields{StartDate: start, EndDate: end, Amount: amount, Currency: "€"}
	static := billing.Static{Vendor: "Mediapart", Version: 1, ExtractedAt: testNow}
	return billing.BuildRecord(static, fields, billing.Link{BillId: id, FileUrl: "https://example.test/" + id})
}

var testOptions = SaveOptions{
	Keys:        []string{"vendor", "billId"},
	Identifiers: []string{"mediapart"},
}

func TestSaveBillsSkipsKnownBills(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	folder := t.TempDir()

	records := []billing.Record{
		testRecord("A1", time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), 9.99),
		testRecord("A2", time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), 9.99),
	}

	downloader := &fakeDownloader{}
	summary, err := store.SaveBills(ctx, "run-1", folder, records, testOptions, downloader)
	require.NoError(t, err)
	require.Equal(t, SaveSummary{Saved: 2}, summary)

	contents, err := os.ReadFile(filepath.Join(folder, records[0].Filename))
	require.NoError(t, err)
	require.Equal(t, "%PDF A1", string(contents))

	downloader = &fakeDownloader{}
	records = append(records, testRecord("A3", time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC), 9.99))
	summary, err = store.SaveBills(ctx, "run-2", folder, records, testOptions, downloader)
	require.NoError(t, err)
	require.Equal(t, SaveSummary{Saved: 1, Skipped: 2}, summary)
	require.Equal(t, []string{"A3"}, downloader.calls)

	bills, err := store.List(ctx, "Mediapart")
	require.NoError(t, err)
	require.Len(t, bills, 3)
	require.Equal(t, "A1", bills[0].BillId)
	require.Equal(t, "run-1", bills[0].RunId)
	require.Equal(t, "Mediapart/A1", bills[0].DedupKey)
	require.Equal(t, filepath.Join(folder, records[0].Filename), bills[0].FilePath)
	require.Equal(t, records[0].Date, bills[0].Date)
	require.Equal(t, testNow, bills[0].Metadata.Date)
	require.Equal(t, "run-2", bills[2].RunId)
}

func TestSaveBillsRetriesFailedDownloads(t *testing.T) {
	ctx := context.Background()
	store, rec := newTestStore(t)
	folder := t.TempDir()

	records := []billing.Record{
		testRecord("A1", time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), 9.99),
		testRecord("A2", time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), 9.99),
	}

	summary, err := store.SaveBills(ctx, "run-1", folder, records, testOptions, &fakeDownloader{
		broken: map[string]bool{"A1": true},
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "A1")
	require.Equal(t, SaveSummary{Saved: 1}, summary)
	require.Len(t, rec.Reports("warning"), 1)

	downloader := &fakeDownloader{}
	summary, err = store.SaveBills(ctx, "run-2", folder, records, testOptions, downloader)
	require.NoError(t, err)
	require.Equal(t, SaveSummary{Saved: 1, Skipped: 1}, summary)
	require.Equal(t, []string{"A1"}, downloader.calls)
}

func TestSaveBillsStaysInFolder(t *testing.T) {
	ctx := context.Background()
	store, rec := newTestStore(t)
	folder := filepath.Join(t.TempDir(), "bills")

	escaping := testRecord("A1", time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), 9.99)
	escaping.Filename = "../../evil.pdf"
	records := []billing.Record{
		escaping,
		testRecord("A2", time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), 9.99),
	}

	downloader := &fakeDownloader{}
	summary, err := store.SaveBills(ctx, "run", folder, records, testOptions, downloader)
	require.True(t, errors.Is(err, ErrOutsideFolder))
	require.Equal(t, SaveSummary{Saved: 1}, summary)
	require.Equal(t, []string{"A2"}, downloader.calls)
	require.Len(t, rec.Reports("broken"), 1)

	_, err = os.Stat(filepath.Join(folder, "..", "..", "evil.pdf"))
	require.True(t, os.IsNotExist(err))

	bills, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, bills, 1)
	require.Equal(t, "A2", bills[0].BillId)
}

func TestSaveBillsUnknownKey(t *testing.T) {
	store, _ := newTestStore(t)
	records := []billing.Record{testRecord("A1", time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), 9.99)}

	_, err := store.SaveBills(context.Background(), "run", t.TempDir(), records, SaveOptions{
		Keys: []string{"vendor", "invoiceNumber"},
	}, &fakeDownloader{})
	require.True(t, errors.Is(err, ErrUnknownKey))
}

func TestDedupKey(t *testing.T) {
	record := testRecord("A1", time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), 9.99)

	key, err := DedupKey(record, []string{"vendor", "billId", "date", "amount"})
	require.NoError(t, err)
	require.Equal(t, "Mediapart/A1/2020-01-31/9.99", key)

	_, err = DedupKey(record, nil)
	require.Error(t, err)
}

func TestRecordRun(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	id, err := store.RecordRun(ctx, RunSummary{
		Vendor:    "Mediapart",
		StartedAt: testNow.Add(-time.Minute),
		Era:       "accounts",
		Saved:     2,
		Failures:  1,
		Err:       errors.New("download F1: 503"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	runs, err := store.Runs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, id, runs[0].ID)
	require.Equal(t, testNow.Unix(), runs[0].FinishedAt)
	require.Equal(t, int64(2), runs[0].Saved)
	require.Equal(t, "download F1: 503", runs[0].Error)
}

func TestMatchOperations(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	january := testRecord("A1", time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), 9.99)
	february := testRecord("A2", time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), 11)
	_, err := store.SaveBills(
		ctx, "run", t.TempDir(),
		[]billing.Record{january, february},
		testOptions,
		&fakeDownloader{},
	)
	require.NoError(t, err)

	operations := []Operation{
		{Label: "PRLV SEPA MEDIA PART", Amount: -9.99, Date: time.Date(2020, 2, 3, 0, 0, 0, 0, time.UTC)},
		// booked too late
		{Label: "PRLV SEPA MEDIAPART", Amount: -11, Date: time.Date(2020, 3, 20, 0, 0, 0, 0, time.UTC)},
		// wrong label
		{Label: "PRLV SEPA LE MONDE", Amount: -9.99, Date: time.Date(2020, 2, 3, 0, 0, 0, 0, time.UTC)},
		// booked before the bill
		{Label: "mediapart", Amount: -11, Date: time.Date(2020, 2, 20, 0, 0, 0, 0, time.UTC)},
		{Label: "CB Mediapart", Amount: -11, Date: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	matches, err := store.MatchOperations(ctx, operations)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "PRLV SEPA MEDIA PART", matches[0].Operation.Label)
	require.Len(t, matches[0].Bills, 1)
	require.Equal(t, "A1", matches[0].Bills[0].BillId)
	require.Equal(t, "CB Mediapart", matches[1].Operation.Label)
	require.Equal(t, "A2", matches[1].Bills[0].BillId)
}
