package mediapart

import (
	"net/url"

	"mediapart-bills/internal/billing"
	"mediapart-bills/internal/components/chrono"
	"mediapart-bills/internal/components/telemetry"
)

const (
	Vendor = "Mediapart"
	// Version is the version of the record schema written into every record's metadata.
	Version = 1
)

// Identifiers are matched against bank operation labels to link them to bills.
var Identifiers = []string{"mediapart"}

// DedupKeys are the record fields identifying a bill across runs.
var DedupKeys = []string{"vendor", "billId"}

// the pdf endpoint of the newest markup rejects the default go user agent
const downloadUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

// Eras lists the markup generations of the bills page, newest first.
//
//   - accounts: a single `#factures` list, links like `/facture/<id>/pdf` resolved
//     against the site root.
//   - tables: list items inside tables ("recent" bills) followed by the rows of
//     the second table ("old" bills), links like `index.php?get_facture=<id>`
//     appended to the legacy account path. Accounts too young to have old bills
//     only have the first table.
func Eras(urls Urls) []billing.Era {
	return []billing.Era{
		{
			Name:   "accounts",
			Detect: billing.HasAtLeast("#factures", 1),
			Extractors: []billing.LineExtractor{
				{
					Name:  "recent",
					Scope: billing.Scope{Container: "#factures", Index: -1, Item: "li"},
					Fields: billing.FieldParser{
						billing.InlineFields{Pattern: billing.DefaultInlinePattern},
					},
					Links: billing.LinkDeriver{
						billing.NewPathLink("facture", urls.Account),
					},
				},
			},
			RequestOptions: &billing.RequestOptions{
				Headers: map[string]string{"user-agent": downloadUserAgent},
			},
		},
		{
			Name:   "tables",
			Detect: billing.HasAtLeast("table", 1),
			Extractors: []billing.LineExtractor{
				{
					Name:  "recent",
					Scope: billing.Scope{Container: "table", Index: -1, Item: "li"},
					Fields: billing.FieldParser{
						billing.InlineFields{Pattern: billing.DefaultInlinePattern},
					},
					Links: billing.LinkDeriver{
						billing.NewQueryLink("get_facture", urls.LegacyFiles),
					},
				},
				{
					Name:  "old",
					Scope: billing.Scope{Container: "table", Index: 1, Item: "tr", Cells: "td"},
					// the first two rows of this table are layout junk
					Filter: billing.RowFilter{SkipLeading: 2, RequireAttr: "align"},
					Fields: billing.FieldParser{
						billing.CellFields{Dates: billing.DefaultDatesPattern, AmountCell: 1},
						billing.InlineFields{Pattern: billing.DefaultInlinePattern},
					},
					Links: billing.LinkDeriver{
						billing.NewQueryLink("get_facture", urls.LegacyFiles),
					},
				},
			},
		},
	}
}

// NewDocumentParser returns the parser for every known markup of the bills page.
func NewDocumentParser(urls Urls, time chrono.API, tel telemetry.API) billing.DocumentParser {
	return billing.NewDocumentParser(Vendor, Version, Eras(urls), time, tel)
}

// Urls are the endpoints of the website, they can be overridden for testing.
type Urls struct {
	// Login is the page holding the login form.
	Login *url.URL
	// Account is the account page, bills are listed on it or in a frame of it.
	Account *url.URL
	// LegacyFiles is the prefix of the file links of the tables markup.
	LegacyFiles string
}

// DefaultUrls are the production endpoints.
func DefaultUrls() Urls {
	urls, err := NewUrls("https://www.mediapart.fr/", "https://moncompte.mediapart.fr/")
	if err != nil {
		panic(err)
	}
	return urls
}

// NewUrls derives every endpoint from the site root and the account root.
func NewUrls(site, account string) (Urls, error) {
	login, err := url.Parse(site)
	if err != nil {
		return Urls{}, err
	}
	accountUrl, err := url.Parse(account)
	if err != nil {
		return Urls{}, err
	}
	legacy := accountUrl.ResolveReference(&url.URL{Path: "/base/moncompte/"})
	return Urls{
		Login:       login,
		Account:     accountUrl,
		LegacyFiles: legacy.String(),
	}, nil
}
