package billing

import (
	"fmt"

	"mediapart-bills/internal/components/telemetry"
	"mediapart-bills/pkg/htmlutil"
)

const (
	report_extractor_parse_line = "extractor.parse-line"
	report_extractor_skip_line  = "extractor.skip-line"
	report_extractor_absent     = "extractor.absent"
)

// Scope says where the candidate lines of an extractor live.
type Scope struct {
	// Container selects the elements holding the lines.
	Container string
	// Index picks a single container, a negative index reads every container.
	Index int
	// Item selects the lines inside the container(s).
	Item string
	// Cells selects the cells of a line, empty when lines have no cells.
	Cells string
}

// RowFilter discards lines before they are parsed.
type RowFilter struct {
	// SkipLeading drops the first n lines unconditionally.
	SkipLeading int
	// RequireAttr drops lines that do not carry this attribute.
	RequireAttr string
}

// LineExtractor turns the lines of one structural shape of a document into records.
type LineExtractor struct {
	Name   string
	Scope  Scope
	Filter RowFilter
	Fields FieldParser
	Links  LinkDeriver
}

// Extraction is the outcome of running one or more extractors.
type Extraction struct {
	Records  []Record
	Failures []LineFailure
}

type lineResult struct {
	record Record
	err    error
}

// lines returns the candidate elements in document order, empty if the
// container is missing.
func (e LineExtractor) lines(doc Node) []Node {
	if e.Scope.Index < 0 {
		return doc.Find(e.Scope.Container + " " + e.Scope.Item)
	}
	containers := doc.Find(e.Scope.Container)
	if e.Scope.Index >= len(containers) {
		return nil
	}
	return containers[e.Scope.Index].Find(e.Scope.Item)
}

func (e LineExtractor) candidate(line Node) (Candidate, bool) {
	c := Candidate{Text: line.Text()}
	if e.Scope.Cells != "" {
		for _, cell := range line.Find(e.Scope.Cells) {
			c.Cells = append(c.Cells, cell.Text())
		}
	}
	anchors := line.Find("a")
	if len(anchors) == 0 {
		return c, false
	}
	href, ok := anchors[0].Attr("href")
	if !ok || href == "" {
		return c, false
	}
	c.Href = href
	return c, true
}

func (e LineExtractor) build(c Candidate, static Static) lineResult {
	fields, err := e.Fields.Parse(c)
	if err != nil {
		return lineResult{err: err}
	}
	link, err := e.Links.Derive(c.Href)
	if err != nil {
		return lineResult{err: err}
	}
	return lineResult{record: BuildRecord(static, fields, link)}
}

// Extract builds a record out of every bill line in `doc`. Lines that cannot be
// parsed are reported to `tel` and returned as failures, they never stop the
// extraction of the other lines.
func (e LineExtractor) Extract(doc Node, static Static, tel telemetry.API) Extraction {
	lines := e.lines(doc)
	if len(lines) == 0 {
		tel.ReportDebug(report_extractor_absent, e.Name, e.Scope.Container, e.Scope.Index)
		return Extraction{}
	}

	var out Extraction
	for i, line := range lines {
		if i < e.Filter.SkipLeading {
			continue
		}
		if e.Filter.RequireAttr != "" {
			if _, ok := line.Attr(e.Filter.RequireAttr); !ok {
				continue
			}
		}

		c, hasLink := e.candidate(line)
		if !hasLink {
			// gift cards and promotions come without any document to download
			tel.ReportDebug(report_extractor_skip_line, e.Name, i, c.Text)
			continue
		}

		res := e.build(c, static)
		if res.err != nil {
			failure := LineFailure{
				Extractor: e.Name,
				Index:     i,
				Text:      htmlutil.CleanText(c.Text),
				Err:       res.err,
			}
			tel.ReportWarning(
				report_extractor_parse_line,
				fmt.Errorf("line is not parseable: %w", res.err),
				e.Name,
				i,
				failure.Text,
			)
			out.Failures = append(out.Failures, failure)
			continue
		}
		out.Records = append(out.Records, res.record)
	}
	return out
}
