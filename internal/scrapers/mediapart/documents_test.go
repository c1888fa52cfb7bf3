package mediapart

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediapart-bills/internal/billing"
	"mediapart-bills/internal/components/chrono"
	"mediapart-bills/internal/components/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var extractedAt = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

func parseFixture(t *testing.T, name string) (billing.Result, *telemetry.Recorder) {
	contents, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	doc, err := billing.ParseHTML(strings.NewReader(string(contents)))
	if err != nil {
		t.Fatal(err)
	}

	rec := &telemetry.Recorder{}
	parser := NewDocumentParser(DefaultUrls(), chrono.FixedImpl{At: extractedAt}, rec)
	result, err := parser.Parse(doc)
	if err != nil {
		t.Fatal(err)
	}
	return result, rec
}

func billIds(records []billing.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.BillId
	}
	return ids
}

func TestParseTablesMarkup(t *testing.T) {
	result, rec := parseFixture(t, "tables.html")

	require.Equal(t, "tables", result.Era)
	require.Equal(t, []string{"ABC123", "ABC124", "OLD001", "OLD002"}, billIds(result.Records))

	expected := billing.Record{
		Title:     "Mediapart ABC123 2020-01-01 - 2020-01-31",
		Vendor:    "Mediapart",
		BillId:    "ABC123",
		StartDate: "2020-01-01",
		EndDate:   "2020-01-31",
		Date:      time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC),
		Amount:    9.99,
		Currency:  "€",
		Filename:  "mediapart_ABC123_2020-01-01_2020-01-31.pdf",
		FileUrl:   "https://moncompte.mediapart.fr/base/moncompte/index.php?get_facture=ABC123",
		Metadata:  billing.Metadata{Date: extractedAt, Version: 1},
	}
	if diff := cmp.Diff(expected, result.Records[0]); diff != "" {
		t.Fatalf("unexpected record (-want +got):\n%s", diff)
	}

	require.Equal(
		t,
		"https://moncompte.mediapart.fr/base/moncompte/index.php?get_facture=ABC124&format=pdf",
		result.Records[1].FileUrl,
	)
	require.Equal(t, "€", result.Records[1].Currency)

	old := result.Records[2]
	require.Equal(t, "2015-11-01", old.StartDate)
	require.Equal(t, "2015-11-30", old.EndDate)
	require.InDelta(t, 9.0, old.Amount, 0.0001)
	require.Equal(t, "€", old.Currency)
	require.Equal(t, "mediapart_OLD001_2015-11-01_2015-11-30.pdf", old.Filename)

	require.Len(t, result.Failures, 1)
	require.Equal(t, "recent", result.Failures[0].Extractor)
	require.Equal(t, 3, result.Failures[0].Index)
	require.True(t, errors.Is(result.Failures[0], billing.ErrUnparseableLine))
	require.Len(t, rec.Reports("warning"), 1)
}

func TestParseRecentOnly(t *testing.T) {
	result, _ := parseFixture(t, "tables_recent_only.html")

	require.Equal(t, "tables", result.Era)
	require.Equal(t, []string{"ABC123", "ABC124"}, billIds(result.Records))
	require.Empty(t, result.Failures)
}

func TestParseAccountsMarkup(t *testing.T) {
	result, rec := parseFixture(t, "accounts.html")

	require.Equal(t, "accounts", result.Era)
	require.Equal(t, []string{"F2023-09-4471", "F2023-10-5012"}, billIds(result.Records))

	first := result.Records[0]
	require.Equal(t, "2023-09-01", first.StartDate)
	require.Equal(t, "2023-09-30", first.EndDate)
	require.InDelta(t, 11.0, first.Amount, 0.0001)
	require.Equal(t, "€", first.Currency)
	require.Equal(t, "https://moncompte.mediapart.fr/facture/F2023-09-4471/pdf", first.FileUrl)
	require.NotNil(t, first.RequestOptions)
	require.Equal(t, downloadUserAgent, first.RequestOptions.Headers["user-agent"])

	require.Len(t, result.Failures, 1)
	require.True(t, errors.Is(result.Failures[0], billing.ErrUnresolvableLink))
	require.Len(t, rec.Reports("warning"), 1)
}

func TestParseScenarioA(t *testing.T) {
	doc, err := billing.ParseHTML(strings.NewReader(`<table><tr><td><ul>
		<li>du 01/01/2020 au 31/01/2020 9,99 € <a href="index.php?get_facture=ABC123">PDF</a></li>
	</ul></td></tr></table>`))
	require.NoError(t, err)

	parser := NewDocumentParser(DefaultUrls(), chrono.FixedImpl{At: extractedAt}, &telemetry.Recorder{})
	result, err := parser.Parse(doc)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	r := result.Records[0]
	require.Equal(t, "2020-01-01", r.StartDate)
	require.Equal(t, "2020-01-31", r.EndDate)
	require.InDelta(t, 9.99, r.Amount, 0.0001)
	require.Equal(t, "€", r.Currency)
	require.Equal(t, "ABC123", r.BillId)
	require.Equal(t, "mediapart_ABC123_2020-01-01_2020-01-31.pdf", r.Filename)
}

func TestParseIdentifierPatternFollowsEra(t *testing.T) {
	// a path style link inside the tables markup is not a bill link
	doc, err := billing.ParseHTML(strings.NewReader(`<table><tr><td><ul>
		<li>du 01/01/2020 au 31/01/2020 9,99 € <a href="/facture/ABC123/pdf">PDF</a></li>
	</ul></td></tr></table>`))
	require.NoError(t, err)

	parser := NewDocumentParser(DefaultUrls(), chrono.FixedImpl{At: extractedAt}, &telemetry.Recorder{})
	result, err := parser.Parse(doc)
	require.NoError(t, err)
	require.Empty(t, result.Records)
	require.Len(t, result.Failures, 1)
	require.True(t, errors.Is(result.Failures[0], billing.ErrUnresolvableLink))
}

func TestParseUnrecognizedPage(t *testing.T) {
	doc, err := billing.ParseHTML(strings.NewReader(`<html><body><form id="logFormEl"></form></body></html>`))
	require.NoError(t, err)

	parser := NewDocumentParser(DefaultUrls(), chrono.FixedImpl{At: extractedAt}, &telemetry.Recorder{})
	_, err = parser.Parse(doc)
	require.True(t, errors.Is(err, billing.ErrUnrecognizedDocument))
}

func TestNewUrls(t *testing.T) {
	urls := DefaultUrls()
	require.Equal(t, "https://www.mediapart.fr/", urls.Login.String())
	require.Equal(t, "https://moncompte.mediapart.fr/", urls.Account.String())
	require.Equal(t, "https://moncompte.mediapart.fr/base/moncompte/", urls.LegacyFiles)
}
