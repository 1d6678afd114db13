// Package commerce is the client of the remote commerce REST API.
package commerce

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds every request. A request without a response
// within it fails with ErrRemoteUnavailable.
const DefaultTimeout = 10 * time.Second

const maxBodySize = 4 << 20

type options struct {
	timeout    time.Duration
	httpClient *http.Client
	tracers    trace.TracerProvider
	meters     metric.MeterProvider
}

// Option configures a Client.
type Option func(*options)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTracerProvider sets the tracer provider for spans and transport
// instrumentation.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracers = tp }
}

// WithMeterProvider sets the meter provider for failure counters and
// transport instrumentation.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meters = mp }
}

// Client calls the commerce API. It is safe for concurrent use.
type Client struct {
	base     *url.URL
	http     *http.Client
	tracer   trace.Tracer
	failures metric.Int64Counter
}

// New returns a Client for the API rooted at baseURL, e.g.
// "http://localhost:8080/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	o := options{
		timeout: DefaultTimeout,
		tracers: otel.GetTracerProvider(),
		meters:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: o.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(o.tracers),
				otelhttp.WithMeterProvider(o.meters),
			),
		}
	}

	failures, err := o.meters.Meter("storefront/commerce").Int64Counter("storefront.commerce.failures",
		metric.WithDescription("Failed commerce API operations"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create failure counter")
	}

	return &Client{
		base:     base,
		http:     httpClient,
		tracer:   o.tracers.Tracer("storefront/commerce"),
		failures: failures,
	}, nil
}

type request struct {
	method string
	path   []string
	query  url.Values
	body   []byte
	header http.Header
	// optional allows an empty response body even when decode is set.
	optional bool
}

// do executes req and feeds the response body to decode. A nil decode
// discards the body.
func (c *Client) do(ctx context.Context, op string, req request, decode func(d *jx.Decoder) error) error {
	ctx, span := c.tracer.Start(ctx, "commerce."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", req.method)),
	)
	defer span.End()

	err := c.roundTrip(ctx, op, req, decode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("kind", kindName(err)),
		))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op string, req request, decode func(d *jx.Decoder) error) error {
	elems := make([]string, len(req.path))
	for i, p := range req.path {
		elems[i] = url.PathEscape(p)
	}
	u := c.base.JoinPath(elems...)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	for k, v := range req.header {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &Error{Op: op, Kind: ErrRemoteUnavailable, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Kind: ErrRemoteUnavailable, Err: errors.Wrap(err, "read body")}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, StatusCode: resp.StatusCode, Kind: kindOfStatus(resp.StatusCode), Err: bodyError(data)}
	}
	if decode == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if req.optional {
			return nil
		}
		return &Error{Op: op, StatusCode: resp.StatusCode, Kind: ErrInvalidResponse, Err: errors.New("empty body")}
	}
	if err := decode(jx.DecodeBytes(data)); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Kind: ErrInvalidResponse, Err: err}
	}
	return nil
}

// bodyError extracts a short message from an error response.
func bodyError(data []byte) error {
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return nil
	}
	d := jx.DecodeBytes(data)
	if d.Next() == jx.Object {
		_ = d.Obj(func(d *jx.Decoder, key string) error {
			if (key == "message" || key == "error") && d.Next() == jx.String {
				s, err := d.Str()
				if err == nil && s != "" {
					msg = s
				}
				return err
			}
			return d.Skip()
		})
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return errors.New(msg)
}

// Ping checks that the API answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", request{method: http.MethodGet, path: []string{"products"}}, nil)
}
