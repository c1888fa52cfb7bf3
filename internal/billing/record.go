// Package billing turns the html listing of a subscription website into bill records.
//
// The extraction is split in small pure steps: a FieldParser reads the dates, amount and
// currency of a line, a LinkDeriver reads the bill id and file url of its anchor,
// BuildRecord assembles both, a LineExtractor walks one structural shape of the
// document and a DocumentParser picks the shapes that apply to a given document.
package billing

import "time"

type Metadata struct {
	// Date is when the record was extracted, not when the bill was issued.
	Date    time.Time `json:"date"`
	Version int       `json:"version"`
}

// RequestOptions carries what is needed to download FileUrl successfully.
type RequestOptions struct {
	Headers map[string]string `json:"headers,omitempty"`
}

type Record struct {
	Title     string `json:"title"`
	Vendor    string `json:"vendor"`
	BillId    string `json:"billId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	// Date is EndDate at midnight UTC.
	Date           time.Time       `json:"date"`
	Amount         float64         `json:"amount"`
	Currency       string          `json:"currency"`
	Filename       string          `json:"filename"`
	FileUrl        string          `json:"fileurl"`
	Metadata       Metadata        `json:"metadata"`
	RequestOptions *RequestOptions `json:"requestOptions,omitempty"`
}

// Key is the deduplication key of a record.
type Key struct {
	Vendor string
	BillId string
}

func (r Record) Key() Key {
	return Key{Vendor: r.Vendor, BillId: r.BillId}
}
