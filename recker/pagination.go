package recker

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// PaginationStrategy selects how the next page is located (spec §4.15).
type PaginationStrategy int

const (
	// LinkHeaderStrategy follows RFC 8288 Link: <url>; rel="next" headers.
	LinkHeaderStrategy PaginationStrategy = iota
	// CursorStrategy reads the next cursor from a dotted-path lookup into
	// the decoded JSON body and sends it back as a query parameter.
	CursorStrategy
	// PageNumberStrategy increments a page-number query parameter until an
	// empty page or MaxPages is reached.
	PageNumberStrategy
)

// PaginationOptions configures a Paginate/Pages/GetAll call.
type PaginationOptions struct {
	Strategy PaginationStrategy

	// ItemsPath is a dotted path (e.g. "data.items") locating the items
	// array within the decoded JSON body. Empty means the body itself is
	// the items array.
	ItemsPath string

	// CursorPath locates the next cursor value for CursorStrategy. Empty or
	// a JSON null terminates pagination.
	CursorPath string
	// CursorParam is the query parameter the cursor is sent back as.
	// Default: "cursor".
	CursorParam string

	// PageParam is the query parameter incremented for PageNumberStrategy.
	// Default: "page".
	PageParam string
	// StartPage is the first page number requested. Default: 1.
	StartPage int

	// MaxPages stops iteration after this many pages regardless of
	// strategy-specific termination. Zero means unbounded.
	MaxPages int

	// ReqOptions are applied to every page request (headers, query params,
	// timeouts, etc).
	ReqOptions []ReqOption
}

func (o PaginationOptions) cursorParam() string {
	if o.CursorParam != "" {
		return o.CursorParam
	}
	return "cursor"
}

func (o PaginationOptions) pageParam() string {
	if o.PageParam != "" {
		return o.PageParam
	}
	return "page"
}

func (o PaginationOptions) startPage() int {
	if o.StartPage != 0 {
		return o.StartPage
	}
	return 1
}

// PageResult is one page's response together with its raw item elements.
type PageResult struct {
	Response   *Response
	Items      []json.RawMessage
	PageNumber int
}

// lookupPath walks a dotted path ("a.b.c") into a decoded JSON value
// (map[string]any / []any tree).
func lookupPath(data any, path string) (any, bool) {
	if path == "" {
		return data, true
	}
	cur := data
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func itemsFromBody(body []byte, itemsPath string) ([]json.RawMessage, error) {
	if itemsPath == "" {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("recker: pagination: decoding items array: %w", err)
		}
		return items, nil
	}

	var tree any
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, fmt.Errorf("recker: pagination: decoding body: %w", err)
	}
	v, ok := lookupPath(tree, itemsPath)
	if !ok {
		return nil, fmt.Errorf("recker: pagination: items path %q not found", itemsPath)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("recker: pagination: items path %q is not an array: %w", itemsPath, err)
	}
	return items, nil
}

// nextLinkURL extracts the rel="next" target from a Link header value
// (RFC 8288), e.g. `<https://api.example.com/items?page=2>; rel="next"`.
func nextLinkURL(header http.Header) (string, bool) {
	for _, line := range header.Values("Link") {
		for _, part := range strings.Split(line, ",") {
			segs := strings.Split(part, ";")
			if len(segs) < 2 {
				continue
			}
			url := strings.TrimSpace(segs[0])
			url = strings.TrimPrefix(url, "<")
			url = strings.TrimSuffix(url, ">")
			for _, attr := range segs[1:] {
				attr = strings.TrimSpace(attr)
				if attr == `rel="next"` || attr == "rel=next" {
					return url, true
				}
			}
		}
	}
	return "", false
}

// Page fetches a single page directly, for callers driving pagination
// themselves (e.g. PageNumberStrategy via an explicit page number).
func Page(ctx context.Context, c *Client, path string, n int, opts PaginationOptions) (*Response, error) {
	rb := c.Request("Page")
	for _, o := range opts.ReqOptions {
		o(rb)
	}
	rb.Query(opts.pageParam(), strconv.Itoa(n))
	return rb.Get(ctx, path)
}

// Pages returns an iterator yielding one PageResult per page until the
// configured strategy signals termination or MaxPages is reached. A request
// or decode failure stops iteration silently; use PagesErr for the error.
func Pages(ctx context.Context, c *Client, path string, opts PaginationOptions) iter.Seq[PageResult] {
	seq, _ := PagesErr(ctx, c, path, opts)
	return seq
}

// PagesErr is Pages plus an error-reporting function: after iteration ends
// (whether by exhaustion, a yield returning false, or an internal failure),
// calling the returned func reports the failure, if any.
func PagesErr(ctx context.Context, c *Client, path string, opts PaginationOptions) (iter.Seq[PageResult], func() error) {
	var lastErr error
	seq := func(yield func(PageResult) bool) {
		pageNum := 0
		nextURL := path
		cursor := ""
		pageNumber := opts.startPage()

		for {
			if opts.MaxPages > 0 && pageNum >= opts.MaxPages {
				return
			}

			rb := c.Request("Paginate")
			for _, o := range opts.ReqOptions {
				o(rb)
			}

			var targetPath string
			switch opts.Strategy {
			case LinkHeaderStrategy:
				targetPath = nextURL
			case CursorStrategy:
				targetPath = path
				if cursor != "" {
					rb.Query(opts.cursorParam(), cursor)
				}
			case PageNumberStrategy:
				targetPath = path
				rb.Query(opts.pageParam(), strconv.Itoa(pageNumber))
			}

			resp, err := rb.Get(ctx, targetPath)
			if err != nil {
				lastErr = err
				return
			}

			body, err := resp.Body()
			if err != nil {
				lastErr = err
				return
			}

			items, err := itemsFromBody(body, opts.ItemsPath)
			if err != nil {
				lastErr = err
				return
			}

			pageNum++
			if !yield(PageResult{Response: resp, Items: items, PageNumber: pageNumber}) {
				return
			}

			if len(items) == 0 {
				return
			}

			switch opts.Strategy {
			case LinkHeaderStrategy:
				next, ok := nextLinkURL(resp.Header)
				if !ok {
					return
				}
				nextURL = next
			case CursorStrategy:
				var tree any
				if err := json.Unmarshal(body, &tree); err != nil {
					lastErr = err
					return
				}
				v, ok := lookupPath(tree, opts.CursorPath)
				if !ok || v == nil {
					return
				}
				s, ok := v.(string)
				if !ok {
					return
				}
				cursor = s
			case PageNumberStrategy:
				pageNumber++
			}
		}
	}
	return seq, func() error { return lastErr }
}

// Paginate flattens Pages into a single item iterator, decoding each raw
// item into T.
func Paginate[T any](ctx context.Context, c *Client, path string, opts PaginationOptions) iter.Seq[T] {
	return func(yield func(T) bool) {
		for page := range Pages(ctx, c, path, opts) {
			for _, raw := range page.Items {
				var item T
				if err := json.Unmarshal(raw, &item); err != nil {
					return
				}
				if !yield(item) {
					return
				}
			}
		}
	}
}

// GetAll collects every item across all pages into a slice, returning the
// first request/decode failure encountered (if any) once iteration stops.
func GetAll[T any](ctx context.Context, c *Client, path string, opts PaginationOptions) ([]T, error) {
	var all []T
	seq, pagesErr := PagesErr(ctx, c, path, opts)
	for page := range seq {
		for _, raw := range page.Items {
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				return all, err
			}
			all = append(all, item)
		}
	}
	if err := pagesErr(); err != nil {
		return all, err
	}
	return all, nil
}
