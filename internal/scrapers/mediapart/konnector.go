package mediapart

import (
	"bytes"
	"context"
	"fmt"

	"mediapart-bills/internal/billing"
	"mediapart-bills/internal/components/assert"
	"mediapart-bills/internal/components/chrono"
	"mediapart-bills/internal/components/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer = otel.Tracer("mediapart-bills/internal/scrapers/mediapart")

const (
	report_konnector_fetch = "konnector.fetch"
)

// Konnector runs the whole extraction for one account: login, fetch the bills
// page, parse it.
type Konnector struct {
	Client *Client
	Parser billing.DocumentParser

	tel telemetry.API
}

func NewKonnector(opts ClientOptions, time chrono.API, tel telemetry.API) (Konnector, error) {
	assert.NotNil(tel, "tel")

	client, err := NewClient(opts, tel)
	if err != nil {
		return Konnector{}, err
	}
	return Konnector{
		Client: client,
		Parser: NewDocumentParser(opts.Urls, time, tel),
		tel:    telemetry.NewScopedAPI("mediapart", tel),
	}, nil
}

// Fetch returns the bills of the account along with the raw html they were
// extracted from.
func (k Konnector) Fetch(ctx context.Context, login, password string) (billing.Result, []byte, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	result, page, err := k.fetch(ctx, login, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, page, err
	}
	span.SetAttributes(
		attribute.String("era", result.Era),
		attribute.Int("records", len(result.Records)),
		attribute.Int("failures", len(result.Failures)),
	)
	return result, page, nil
}

func (k Konnector) fetch(ctx context.Context, login, password string) (billing.Result, []byte, error) {
	k.tel.ReportDebug(report_konnector_fetch, "authenticating")
	err := k.Client.Login(ctx, login, password)
	if err != nil {
		return billing.Result{}, nil, err
	}

	k.tel.ReportDebug(report_konnector_fetch, "fetching the bills page")
	page, err := k.Client.FetchBillsPage(ctx)
	if err != nil {
		return billing.Result{}, nil, fmt.Errorf("fetch bills page: %w", err)
	}

	doc, err := billing.ParseHTML(bytes.NewReader(page))
	if err != nil {
		k.tel.ReportBroken(report_konnector_fetch, fmt.Errorf("parse html: %w", err))
		return billing.Result{}, page, err
	}
	result, err := k.Parser.Parse(doc)
	if err != nil {
		return billing.Result{}, page, err
	}

	k.tel.ReportDebug(
		report_konnector_fetch, "parsed bills page",
		result.Era, len(result.Records), len(result.Failures),
	)
	return result, page, nil
}
