package catalogue

import (
	"context"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
)

// Link is one hyperlink with the entry that owns it.
type Link struct {
	Owner string
	Field string
	URL   string
}

// LinkResult is the outcome of checking one Link.
type LinkResult struct {
	Link
	Status int
	Err    error
}

// OK reports whether the link resolved.
func (r LinkResult) OK() bool {
	return r.Err == nil && r.Status >= 200 && r.Status < 400
}

// LinkCheckOptions configures CheckLinks.
type LinkCheckOptions struct {
	Concurrency int
	Timeout     time.Duration
	UserAgent   string
	Client      *resty.Client
}

// DefaultLinkCheckOptions returns options used by the CLI.
func DefaultLinkCheckOptions() LinkCheckOptions {
	return LinkCheckOptions{
		Concurrency: 8,
		Timeout:     15 * time.Second,
		UserAgent:   "animeface-gan-linkcheck/1.0",
	}
}

// Links lists every hyperlink in catalogue order.
func (c *Catalogue) Links() []Link {
	var links []Link
	for _, m := range c.Models {
		links = append(links, Link{Owner: m.Name, Field: "paper", URL: m.Paper})
		if m.Implementation != "" {
			links = append(links, Link{Owner: m.Name, Field: "implementation", URL: m.Implementation})
		}
	}
	for _, d := range c.Datasets {
		links = append(links, Link{Owner: d.Name, Field: "source", URL: d.Source})
	}
	return links
}

// CheckLinks resolves every link concurrently. Each distinct URL is requested
// once; results are returned in Links() order. A HEAD answered with 405 or 403
// is retried with GET.
func (c *Catalogue) CheckLinks(ctx context.Context, opts LinkCheckOptions) ([]LinkResult, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	client := opts.Client
	if client == nil {
		client = resty.New()
		if opts.Timeout > 0 {
			client.SetTimeout(opts.Timeout)
		}
	}

	links := c.Links()
	var unique []string
	index := make(map[string]int)
	for _, l := range links {
		if _, ok := index[l.URL]; !ok {
			index[l.URL] = len(unique)
			unique = append(unique, l.URL)
		}
	}

	type outcome struct {
		status int
		err    error
	}
	outcomes := make([]outcome, len(unique))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, u := range unique {
		i, u := i, u
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			status, err := probe(ctx, client, opts.UserAgent, u)
			outcomes[i] = outcome{status: status, err: err}
			log.WithFields(log.Fields{"url": u, "status": status}).Debug("link checked")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]LinkResult, len(links))
	for i, l := range links {
		o := outcomes[index[l.URL]]
		results[i] = LinkResult{Link: l, Status: o.status, Err: o.err}
	}
	return results, nil
}

func probe(ctx context.Context, client *resty.Client, userAgent, u string) (int, error) {
	request := func() *resty.Request {
		req := client.R().SetContext(ctx)
		if userAgent != "" {
			req.SetHeader("User-Agent", userAgent)
		}
		return req
	}
	resp, err := request().Head(u)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() == http.StatusMethodNotAllowed || resp.StatusCode() == http.StatusForbidden {
		resp, err = request().SetDoNotParseResponse(true).Get(u)
		if err != nil {
			return 0, err
		}
		_ = resp.RawBody().Close()
	}
	return resp.StatusCode(), nil
}
