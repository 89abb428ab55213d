// Package fetch performs the site's HTTP GETs on top of a colly collector.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	responseKey = "response"
	startKey    = "start"
)

// Options configures a Client.
type Options struct {
	UserAgent        string
	Timeout          time.Duration
	Parallelism      int
	MaxBodyBytes     int
	RespectRobotsTxt bool
}

// Observer receives request-level measurements.
type Observer interface {
	IncRequest(phase string)
	ObserveDuration(d time.Duration)
}

// Response is the outcome of a successful GET.
type Response struct {
	URL        string
	FinalURL   *url.URL
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Text returns the body as text. Bodies declaring a non-UTF-8 charset have
// already been converted by the collector.
func (r *Response) Text() string {
	return string(r.Body)
}

// Client issues synchronous GETs. Redirects are never followed: a 3xx
// answer is reported as *RedirectError before anything is read from the
// redirect target.
type Client struct {
	collector *colly.Collector
	observer  Observer
}

// NewClient builds a client configured from opts. observer may be nil.
func NewClient(opts Options, observer Observer) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}

	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(opts.UserAgent),
	)

	collector.SetRequestTimeout(opts.Timeout)
	collector.IgnoreRobotsTxt = !opts.RespectRobotsTxt
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = opts.MaxBodyBytes
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	collector.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: opts.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure parallelism: %w", err)
	}

	c := &Client{collector: collector, observer: observer}
	c.configureHandlers()
	return c, nil
}

// WithTransport replaces the HTTP transport used by the collector.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.collector.WithTransport(rt)
}

// Fetch GETs rawURL. It returns *RedirectError for any 3xx answer and
// *TransportError for network failures and other non-2xx answers. ctx is
// checked before the request is issued; an issued request runs to
// completion or to the client timeout.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqCtx := colly.NewContext()
	err := c.collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil)
	resp, _ := reqCtx.GetAny(responseKey).(*colly.Response)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, classify(rawURL, err, status)
	}
	if resp == nil {
		return nil, classify(rawURL, errors.New("no response received"), 0)
	}

	var headers http.Header
	if resp.Headers != nil {
		headers = *resp.Headers
	}

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return nil, &RedirectError{
			URL:        rawURL,
			Location:   headers.Get("Location"),
			StatusCode: resp.StatusCode,
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, classify(rawURL, nil, resp.StatusCode)
	}

	var finalURL *url.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	} else {
		finalURL, err = url.Parse(rawURL)
		if err != nil {
			return nil, classify(rawURL, err, 0)
		}
	}

	return &Response{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       resp.Body,
	}, nil
}

func (c *Client) configureHandlers() {
	c.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(startKey, time.Now())
		if c.observer != nil {
			c.observer.IncRequest("started")
		}
	})

	c.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(responseKey, r)
		if c.observer != nil {
			if start, ok := r.Ctx.GetAny(startKey).(time.Time); ok {
				c.observer.ObserveDuration(time.Since(start))
			}
			c.observer.IncRequest("completed")
		}
	})

	c.collector.OnError(func(r *colly.Response, err error) {
		target := ""
		if r != nil && r.Request != nil && r.Request.URL != nil {
			target = r.Request.URL.String()
		}
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(responseKey, r)
		}
		if c.observer != nil {
			c.observer.IncRequest("failed")
		}
		slog.Debug("request error", slog.String("url", target), slog.Any("error", err))
	})
}
