package canvas

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// perPage is the page size requested from Canvas. Fetching the maximum
// keeps the request count down on large rosters.
const perPage = 100

// Paginate walks a page-numbered collection endpoint until Canvas
// returns a short page, concatenating the items. Anonymization is
// applied once to the combined list rather than per page, so nested
// references resolve against the complete result.
func (c *Client) Paginate(ctx context.Context, endpoint string, opts *RequestOptions) ([]any, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	out := make([]any, 0, perPage)
	for page := 1; ; page++ {
		q := url.Values{}
		for k, vs := range opts.Query {
			q[k] = vs
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(perPage))

		raw, err := c.Do(ctx, http.MethodGet, endpoint, &RequestOptions{Query: q, SkipAnonymize: true})
		if err != nil {
			return nil, err
		}
		if raw == nil {
			break
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, NewError(CodeCanvasAPI, "expected a JSON array from %s, got %T", endpoint, raw)
		}
		out = append(out, items...)
		if len(items) < perPage {
			break
		}
	}

	if anonymized, ok := c.maybeAnonymize(endpoint, any(out), opts.SkipAnonymize).([]any); ok {
		return anonymized, nil
	}
	return out, nil
}

// PaginateInto fetches every page and decodes the combined list into
// typed records. Internal consumers pair this with SkipAnonymize since
// typed fields are read by code, not returned to the model.
func PaginateInto[T any](ctx context.Context, c *Client, endpoint string, opts *RequestOptions) ([]T, error) {
	raw, err := c.Paginate(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	return Decode[[]T](raw)
}
