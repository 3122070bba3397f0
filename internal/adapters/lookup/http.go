package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/okian/nocaptcha/pkg/logger"
	"github.com/okian/nocaptcha/pkg/metrics"
)

// Default lookup endpoints.
const (
	DefaultIPURL  = "https://api.ipify.org?format=json"
	DefaultGeoURL = "https://ipapi.co/%s/json/"

	maxBodyBytes = 64 << 10
)

// Lookup names used in metrics.
const (
	lookupIP  = "ip"
	lookupGeo = "geo"
)

// HTTPLocator queries an ip echo service and a geo service over HTTP.
type HTTPLocator struct {
	client *http.Client
	ipURL  string
	geoURL string
	logger logger.Logger
}

// Option applies a configuration option to the HTTPLocator.
type Option func(*HTTPLocator)

// WithClient sets the HTTP client. Its transport is used as is.
func WithClient(c *http.Client) Option {
	return func(l *HTTPLocator) {
		if c != nil {
			l.client = c
		}
	}
}

// WithIPURL sets the ip echo endpoint. It must answer {"ip": "..."}.
func WithIPURL(u string) Option {
	return func(l *HTTPLocator) {
		if u != "" {
			l.ipURL = u
		}
	}
}

// WithGeoURL sets the geo endpoint template; %s is replaced by the ip.
func WithGeoURL(u string) Option {
	return func(l *HTTPLocator) {
		if u != "" {
			l.geoURL = u
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *HTTPLocator) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewHTTPLocator creates a locator with an otelhttp-instrumented client.
func NewHTTPLocator(opts ...Option) *HTTPLocator {
	l := &HTTPLocator{
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		ipURL:  DefaultIPURL,
		geoURL: DefaultGeoURL,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("lookup")
	}
	return l
}

// LookupIP returns the caller's public ip address.
func (l *HTTPLocator) LookupIP(ctx context.Context) Result[string] {
	var body struct {
		IP string `json:"ip"`
	}
	if err := l.getJSON(ctx, lookupIP, l.ipURL, &body); err != nil {
		return Fail[string](err)
	}
	ip := strings.TrimSpace(body.IP)
	if ip == "" {
		l.fail(ctx, lookupIP, ErrEmptyIP)
		return Fail[string](ErrEmptyIP)
	}
	return Ok(ip)
}

// LookupGeo returns the coarse location of ip.
func (l *HTTPLocator) LookupGeo(ctx context.Context, ip string) Result[Geo] {
	if ip == "" {
		return Fail[Geo](ErrEmptyIP)
	}
	var body struct {
		Geo
		Error  bool   `json:"error"`
		Reason string `json:"reason"`
	}
	target := fmt.Sprintf(l.geoURL, url.PathEscape(ip))
	if err := l.getJSON(ctx, lookupGeo, target, &body); err != nil {
		return Fail[Geo](err)
	}
	if body.Error || (body.City == "" && body.Region == "" && body.Country == "") {
		err := fmt.Errorf("%w: %s", ErrMalformed, body.Reason)
		l.fail(ctx, lookupGeo, err)
		return Fail[Geo](err)
	}
	return Ok(body.Geo)
}

func (l *HTTPLocator) getJSON(ctx context.Context, name, target string, out any) error {
	start := time.Now()
	defer func() {
		metrics.RecordLookupLatency(name, float64(time.Since(start).Nanoseconds())/1e6)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrLookupFailed, err)
		l.fail(ctx, name, err)
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrLookupFailed, err)
		l.fail(ctx, name, err)
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
		l.fail(ctx, name, err)
		return err
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		err = fmt.Errorf("%w: %w", ErrMalformed, err)
		l.fail(ctx, name, err)
		return err
	}
	return nil
}

func (l *HTTPLocator) fail(ctx context.Context, name string, err error) {
	metrics.RecordLookupFailure(name)
	l.logger.Warn(ctx, "lookup failed, falling back to unknown",
		logger.String("lookup", name),
		logger.Error(err),
	)
}

// StaticLocator answers every lookup with fixed results. It serves offline
// runs and tests.
type StaticLocator struct {
	IP  Result[string]
	Geo Result[Geo]
}

// NewStaticLocator returns a locator that always reports ip and geo.
func NewStaticLocator(ip string, geo Geo) StaticLocator {
	return StaticLocator{IP: Ok(ip), Geo: Ok(geo)}
}

// LookupIP returns the fixed ip result.
func (s StaticLocator) LookupIP(context.Context) Result[string] { return s.IP }

// LookupGeo returns the fixed geo result.
func (s StaticLocator) LookupGeo(context.Context, string) Result[Geo] { return s.Geo }
