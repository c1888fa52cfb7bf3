// client.go contains the session handling for the mediapart website: logging in,
// finding the bills page and downloading bill documents.

package mediapart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"mediapart-bills/internal/billing"
	"mediapart-bills/internal/components/assert"
	"mediapart-bills/internal/components/telemetry"
	"mediapart-bills/pkg/htmlutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"
)

const (
	report_client_login               = "client.login"
	report_client_fetch_bills_page    = "client.fetch-bills-page"
	report_client_download            = "client.download"
	report_client_find_session_token  = "client.find-session-token"
	report_client_unexpected_response = "client.unexpected-response"
)

// ErrLoginFailed is returned when the website refuses the credentials.
var ErrLoginFailed = errors.New("mediapart: login failed")

type ClientOptions struct {
	Urls Urls
	// Output receives every http exchange when it is not nil.
	Output telemetry.MessageOutput
	// RequestsPerSecond defaults to 2.
	RequestsPerSecond float64
}

type Client struct {
	Http *resty.Client

	urls Urls
	tel  telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel, "tel")
	assert.NotNil(opts.Urls.Login, "login url")
	assert.NotNil(opts.Urls.Account, "account url")

	tel = telemetry.NewScopedAPI("mediapart", tel)

	httpClient := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(
		opts.Urls.Login.Hostname(),
		opts.Urls.Account.Hostname(),
	))
	httpClient.SetTimeout(time.Second * 30)

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	// max burst >= 1 just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel, opts.Output)

	return &Client{
		Http: httpClient,
		urls: opts.Urls,
		tel:  tel,
	}, nil
}

// decodeBody returns the body of an html response as utf-8, the legacy
// account pages are served in latin-1.
func decodeBody(res *resty.Response) ([]byte, error) {
	_, params, err := mime.ParseMediaType(res.Header().Get("content-type"))
	if err != nil {
		return res.Body(), nil
	}
	label := strings.ToLower(params["charset"])
	if label == "" || label == "utf-8" || label == "utf8" {
		return res.Body(), nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Bytes(res.Body())
}

// get fetches an html page and returns its body as utf-8.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		c.tel.ReportWarning(report_client_unexpected_response, endpoint, res.Status())
		return nil, fmt.Errorf("GET %s: %s", endpoint, res.Status())
	}
	return decodeBody(res)
}

func countLogoutLinks(base *url.URL, doc *goquery.Document) int {
	count := 0
	for _, a := range htmlutil.GetAnchors(base, doc.Find("a[href]")) {
		if strings.TrimSuffix(a.Url.Path, "/") == "/logout" {
			count++
		}
	}
	return count
}

// Login submits the login form of the website with the given credentials,
// the session cookies are kept in the client.
func (c *Client) Login(ctx context.Context, login, password string) error {
	loginError := func(err error) error {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	page, err := c.get(ctx, c.urls.Login.String())
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("fetch login page: %w", err))
		return loginError(err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("parse login page: %w", err))
		return loginError(err)
	}

	form := doc.Find("#logFormEl").First()
	if form.Length() == 0 {
		err := fmt.Errorf("could not find login form")
		c.tel.ReportBroken(report_client_login, err)
		return loginError(err)
	}
	action, err := url.Parse(form.AttrOr("action", ""))
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("parse form action: %w", err))
		return loginError(err)
	}
	target := c.urls.Login.ResolveReference(action)

	values := htmlutil.FormValues(form)
	values["name"] = login
	values["password"] = password

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(values).
		Post(target.String())
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("login request: %w", err))
		return loginError(err)
	}
	page, err = decodeBody(res)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("decode login response: %w", err))
		return loginError(err)
	}
	doc, err = goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("parse login response: %w", err))
		return loginError(err)
	}

	if countLogoutLinks(target, doc) == 0 {
		message := htmlutil.CleanText(doc.Find(".js-flash-message .error").Text())
		if message == "" {
			message = "no logout link after login"
		}
		c.tel.ReportWarning(report_client_login, message)
		return loginError(errors.New(message))
	}

	c.tel.ReportDebug(report_client_login, "logged in")
	return nil
}

var sessionRegex = regexp.MustCompile(`sess=([^&]*)`)

func (c *Client) listingUrl(frameSrc string) (string, error) {
	groups := sessionRegex.FindStringSubmatch(frameSrc)
	if len(groups) < 2 || groups[1] == "" {
		return "", fmt.Errorf("no session token in %q", frameSrc)
	}
	session, err := url.QueryUnescape(groups[1])
	if err != nil {
		return "", fmt.Errorf("unescape session token: %w", err)
	}

	query := url.Values{}
	query.Set("abonnement", "0")
	query.Set("sess", session)
	listing := c.urls.Account.ResolveReference(&url.URL{
		Path:     "/base/moncompte/ajax/index.php",
		RawQuery: query.Encode(),
	})
	return listing.String(), nil
}

// FetchBillsPage returns the html of the page listing the bills, the client
// must be logged in. Older accounts list their bills in a frame of the account
// page, whose listing is fetched with the session token the frame carries.
func (c *Client) FetchBillsPage(ctx context.Context) ([]byte, error) {
	endpoint := c.urls.Account.String()
	page, err := c.get(ctx, endpoint)
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_bills_page, fmt.Errorf("fetch account page: %w", err))
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_bills_page, fmt.Errorf("parse account page: %w", err))
		return nil, err
	}

	src, ok := doc.Find("iframe[src*=moncompte]").First().Attr("src")
	if !ok {
		return page, nil
	}

	listing, err := c.listingUrl(src)
	if err != nil {
		c.tel.ReportBroken(report_client_find_session_token, err)
		return nil, err
	}
	c.tel.ReportDebug(report_client_fetch_bills_page, listing)

	page, err = c.get(ctx, listing)
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_bills_page, fmt.Errorf("fetch listing: %w", err), listing)
		return nil, err
	}
	return page, nil
}

// Download fetches the document of a bill, applying the request options the
// record carries.
func (c *Client) Download(ctx context.Context, record billing.Record) ([]byte, error) {
	req := c.Http.R().SetContext(ctx)
	if record.RequestOptions != nil {
		req.SetHeaders(record.RequestOptions.Headers)
	}
	res, err := req.Get(record.FileUrl)
	if err != nil {
		c.tel.ReportBroken(report_client_download, err, record.FileUrl)
		return nil, err
	}
	if res.IsError() {
		err := fmt.Errorf("GET %s: %s", record.FileUrl, res.Status())
		c.tel.ReportBroken(report_client_download, err)
		return nil, err
	}
	return res.Body(), nil
}
