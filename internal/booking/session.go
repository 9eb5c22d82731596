package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"statementsync/internal/components/assert"
	"statementsync/internal/components/telemetry"
	"statementsync/pkg/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_session_new     = "session.new"
	report_session_cookies = "session.cookies"
)

// per request class timeouts, the transport itself has none so streamed
// exports are not cut off.
const (
	timeoutDefault = 30 * time.Second
	timeoutBalance = 20 * time.Second
	timeoutViewer  = 180 * time.Second
	timeoutReport  = 300 * time.Second
	timeoutExport  = 600 * time.Second
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Options struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	// RequestsPerSecond caps the request rate, 0 disables the limiter.
	RequestsPerSecond float64
	// CloudflareBypass wraps the transport with a browser-like TLS fingerprint.
	CloudflareBypass bool
	// Extractors overrides individual extraction strategies, nil fields use the defaults.
	Extractors Extractors
	// HttpDump receives every completed exchange when set.
	HttpDump restyutil.InstrumentOutput
}

// Session owns the one authenticated HTTP session of a run. It is not safe for
// concurrent use, requests are expected to be made from a single goroutine.
type Session struct {
	baseUrl *url.URL
	http    *resty.Client
	jar     *cookiejar.Jar
	extract Extractors
	tel     telemetry.API
}

func NewSession(opts Options, tel telemetry.API) (*Session, error) {
	assert.NotNil(tel, "tel")

	tel = telemetry.NewScopedAPI("booking", tel)

	base := strings.TrimRight(opts.BaseUrl, "/")
	if base == "" {
		base = DefaultBaseUrl
	}
	parsedBaseUrl, err := url.Parse(base)
	if err != nil {
		tel.ReportBroken(report_session_new, fmt.Errorf("parse base url: %w", err))
		return nil, err
	}
	if parsedBaseUrl.Scheme == "" || parsedBaseUrl.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", base)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(base)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	httpClient.SetHeaders(map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Origin":          base,
	})
	httpClient.SetRedirectPolicy(
		redirectSwitch{},
		resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()),
		resty.FlexibleRedirectPolicy(10),
	)

	// 3 retries with exponential backoff starting at 1s, only for the secure scheme
	if parsedBaseUrl.Scheme == "https" {
		httpClient.
			SetRetryCount(3).
			SetRetryWaitTime(time.Second).
			SetRetryMaxWaitTime(4 * time.Second).
			AddRetryCondition(retryTransportError)
	}

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		// burst >= rate just means that no requests will be dropped
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel, opts.HttpDump)

	return &Session{
		baseUrl: parsedBaseUrl,
		http:    httpClient,
		jar:     jar,
		extract: opts.Extractors.withDefaults(),
		tel:     tel,
	}, nil
}

// retryTransportError retries requests that failed below HTTP. POSTs are
// never resubmitted.
func retryTransportError(res *resty.Response, err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if res == nil || res.Request == nil {
		return false
	}
	return res.Request.Method != http.MethodPost
}

func (s *Session) BaseUrl() *url.URL {
	copied := *s.baseUrl
	return &copied
}

// requestKind selects the header overlay a request is sent with. The base
// profile is never mutated, each request builds its own overlay.
type requestKind int

const (
	// pageRequest is a plain browser navigation, no X-Requested-With.
	pageRequest requestKind = iota
	// ajaxRequest is an XMLHttpRequest issued by the site's scripts.
	ajaxRequest
	// formRequest is an XMLHttpRequest form POST.
	formRequest
)

func (s *Session) request(ctx context.Context, kind requestKind, referer string) *resty.Request {
	req := s.http.R().
		SetContext(ctx).
		SetHeader("Referer", s.baseUrl.String()+referer)

	switch kind {
	case ajaxRequest, formRequest:
		req.SetHeader("X-Requested-With", "XMLHttpRequest")
	}
	return req
}

// formPost encodes the form itself so the exact Content-Type the site expects is kept.
func (s *Session) formPost(ctx context.Context, referer, contentType string, form url.Values) *resty.Request {
	return s.request(ctx, formRequest, referer).
		SetHeader("Content-Type", contentType).
		SetBody(form.Encode())
}

type noRedirectKey struct{}

// withoutRedirects makes requests sent with the returned context stop at the
// first redirect response instead of following it.
func withoutRedirects(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRedirectKey{}, true)
}

type redirectSwitch struct{}

func (redirectSwitch) Apply(req *http.Request, _ []*http.Request) error {
	if disabled, _ := req.Context().Value(noRedirectKey{}).(bool); disabled {
		return http.ErrUseLastResponse
	}
	return nil
}

// Cookies returns the name/value pairs the session would send to the site.
func (s *Session) Cookies() map[string]string {
	cookies := map[string]string{}
	for _, c := range s.jar.Cookies(s.baseUrl) {
		cookies[c.Name] = c.Value
	}
	return cookies
}

// SetCookies adds name/value pairs to the session's jar for the site.
func (s *Session) SetCookies(cookies map[string]string) {
	list := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		list = append(list, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	s.jar.SetCookies(s.baseUrl, list)
	s.tel.ReportDebug(report_session_cookies, len(list))
}

type statusError struct {
	Status int
}

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// IsStatus reports whether err was caused by the site answering with the given status.
func IsStatus(err error, status int) bool {
	var target statusError
	return errors.As(err, &target) && target.Status == status
}
