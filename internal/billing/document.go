package billing

import (
	"fmt"

	"mediapart-bills/internal/components/assert"
	"mediapart-bills/internal/components/chrono"
	"mediapart-bills/internal/components/telemetry"
)

const (
	report_document_parse     = "document.parse"
	report_document_duplicate = "document.duplicate-bill"
)

// Era is one generation of the markup of the billing page. Extractors run in
// order and their records are concatenated in that order.
type Era struct {
	Name           string
	Detect         func(doc Node) bool
	Extractors     []LineExtractor
	RequestOptions *RequestOptions
}

// HasAtLeast returns a detector matching documents with at least n elements
// matching selector.
func HasAtLeast(selector string, n int) func(Node) bool {
	return func(doc Node) bool {
		return len(doc.Find(selector)) >= n
	}
}

// Result is everything extracted from one document.
type Result struct {
	Era string
	Extraction
}

type DocumentParser struct {
	vendor  string
	version int
	eras    []Era
	time    chrono.API
	tel     telemetry.API
}

// NewDocumentParser creates a parser trying `eras` in order, the first era
// whose detector matches is used for the whole document.
func NewDocumentParser(vendor string, version int, eras []Era, time chrono.API, tel telemetry.API) DocumentParser {
	assert.NotEmptyStr(vendor, "vendor")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "tel")

	return DocumentParser{
		vendor:  vendor,
		version: version,
		eras:    eras,
		time:    time,
		tel:     telemetry.NewScopedAPI("billing", tel),
	}
}

// Detect returns the era `doc` was rendered in.
func (p DocumentParser) Detect(doc Node) (Era, error) {
	for _, era := range p.eras {
		if era.Detect(doc) {
			return era, nil
		}
	}
	return Era{}, ErrUnrecognizedDocument
}

// Parse extracts every bill of `doc`. It only fails when the document is not
// recognized at all, lines that cannot be parsed are returned as failures.
func (p DocumentParser) Parse(doc Node) (Result, error) {
	era, err := p.Detect(doc)
	if err != nil {
		p.tel.ReportBroken(report_document_parse, err)
		return Result{}, fmt.Errorf("parse bills document: %w", err)
	}
	p.tel.ReportDebug(report_document_parse, era.Name)

	static := Static{
		Vendor:         p.vendor,
		Version:        p.version,
		ExtractedAt:    p.time.Now(),
		RequestOptions: era.RequestOptions,
	}

	result := Result{Era: era.Name}
	seen := map[Key]bool{}
	for _, extractor := range era.Extractors {
		extraction := extractor.Extract(doc, static, p.tel)
		for _, record := range extraction.Records {
			if seen[record.Key()] {
				p.tel.ReportWarning(report_document_duplicate, extractor.Name, record.BillId)
				continue
			}
			seen[record.Key()] = true
			result.Records = append(result.Records, record)
		}
		result.Failures = append(result.Failures, extraction.Failures...)
	}

	p.tel.ReportCount(report_document_parse, int64(len(result.Records)))
	return result, nil
}
