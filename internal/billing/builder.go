package billing

import (
	"fmt"
	"strings"
	"time"
)

// Static holds the values shared by every record of a run.
type Static struct {
	Vendor         string
	Version        int
	ExtractedAt    time.Time
	RequestOptions *RequestOptions
}

func (o *RequestOptions) clone() *RequestOptions {
	if o == nil {
		return nil
	}
	out := &RequestOptions{}
	if o.Headers != nil {
		out.Headers = make(map[string]string, len(o.Headers))
		for name, value := range o.Headers {
			out.Headers[name] = value
		}
	}
	return out
}

// BuildRecord assembles a record, every record gets its own copy of the
// request options of `static`.
func BuildRecord(static Static, fields Fields, link Link) Record {
	startDate := FormatDate(fields.StartDate)
	endDate := FormatDate(fields.EndDate)

	return Record{
		Title:     fmt.Sprintf("%s %s %s - %s", static.Vendor, link.BillId, startDate, endDate),
		Vendor:    static.Vendor,
		BillId:    link.BillId,
		StartDate: startDate,
		EndDate:   endDate,
		Date:      fields.EndDate,
		Amount:    fields.Amount,
		Currency:  fields.Currency,
		Filename: fmt.Sprintf(
			"%s_%s_%s_%s.pdf",
			strings.ToLower(static.Vendor), link.BillId, startDate, endDate,
		),
		FileUrl: link.FileUrl,
		Metadata: Metadata{
			Date:    static.ExtractedAt,
			Version: static.Version,
		},
		RequestOptions: static.RequestOptions.clone(),
	}
}
