package billing

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Link is what is derived from the anchor of a line.
type Link struct {
	BillId  string
	FileUrl string
}

// LinkPattern derives a Link from the target of an anchor.
type LinkPattern interface {
	Derive(href string) (Link, bool)
}

// safeBillId is what a bill id may contain, it ends up in file names.
var safeBillId = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// QueryLink finds the bill id in a query parameter and builds the file url by
// appending the href to Prefix as is.
type QueryLink struct {
	param  string
	prefix string
}

func NewQueryLink(param, prefix string) QueryLink {
	return QueryLink{param: param, prefix: prefix}
}

func (q QueryLink) Derive(href string) (Link, bool) {
	target, err := url.Parse(href)
	if err != nil {
		return Link{}, false
	}
	return Link{
		BillId:  target.Query().Get(q.param),
		FileUrl: q.prefix + href,
	}, true
}

// PathLink finds the bill id in the path segment following Segment
// ("facture/<id>/") and resolves the href against Base.
type PathLink struct {
	segment *regexp.Regexp
	base    *url.URL
}

func NewPathLink(segment string, base *url.URL) PathLink {
	return PathLink{
		segment: regexp.MustCompile(`(?:^|/)` + regexp.QuoteMeta(segment) + `/([^/?#]+)/`),
		base:    base,
	}
}

func (p PathLink) Derive(href string) (Link, bool) {
	target, err := url.Parse(href)
	if err != nil {
		return Link{}, false
	}
	groups := p.segment.FindStringSubmatch(target.Path)
	if len(groups) < 2 {
		return Link{}, false
	}
	return Link{
		BillId:  groups[1],
		FileUrl: p.base.ResolveReference(target).String(),
	}, true
}

// LinkDeriver tries each of its patterns in order, the first one to match wins.
type LinkDeriver []LinkPattern

func (d LinkDeriver) Derive(href string) (Link, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return Link{}, fmt.Errorf("%w: no anchor", ErrUnresolvableLink)
	}
	for _, pattern := range d {
		link, ok := pattern.Derive(href)
		if !ok || link.BillId == "" {
			continue
		}
		if !safeBillId.MatchString(link.BillId) {
			return Link{}, fmt.Errorf("%w: unsafe bill id %q", ErrUnresolvableLink, link.BillId)
		}
		return link, nil
	}
	return Link{}, fmt.Errorf("%w: no bill id in %q", ErrUnresolvableLink, href)
}
