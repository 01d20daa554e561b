package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/gateway"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// Session is the authenticated gateway of one signed-in user. Row isolation
// is enforced by the project's row-level security policies.
type Session struct {
	c      *Client
	tokens oauth2.TokenSource
	http   *retryablehttp.Client
}

var _ gateway.Gateway = (*Session)(nil)

// Session wraps tok in a refreshing token source. A non-nil wrap decorates
// that source, which lets callers persist refreshed tokens.
func (c *Client) Session(tok *oauth2.Token, wrap func(oauth2.TokenSource) oauth2.TokenSource) *Session {
	var src oauth2.TokenSource = oauth2.ReuseTokenSource(tok, &refresher{c: c, timeout: 15 * time.Second, refresh: tok.RefreshToken})
	if wrap != nil {
		src = wrap(src)
	}
	return &Session{
		c:      c,
		tokens: src,
		http:   c.newHTTP(oauth2.NewClient(context.Background(), src)),
	}
}

func (s *Session) CurrentUser(ctx context.Context) (*model.User, error) {
	tok, err := s.tokens.Token()
	if err != nil {
		if errors.Is(err, apperr.ErrAuthRequired) {
			return nil, nil
		}
		var gerr *apperr.GatewayError
		if errors.As(err, &gerr) && !gerr.Retryable() {
			return nil, nil
		}
		return nil, err
	}
	return UserFromToken(tok.AccessToken)
}

// Token returns the current (possibly refreshed) session token.
func (s *Session) Token() (*oauth2.Token, error) { return s.tokens.Token() }

func (s *Session) Select(ctx context.Context, collection string, filter gateway.Filter, order ...gateway.Order) ([]json.RawMessage, error) {
	q := encodeFilter(filter)
	q.Set("select", "*")
	if len(order) > 0 {
		q.Set("order", encodeOrder(order))
	}
	data, err := s.c.do(ctx, s.http, "select "+collection, http.MethodGet, s.url(collection, q), nil, nil)
	if err != nil {
		return nil, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, &apperr.GatewayError{Op: "select " + collection, Err: fmt.Errorf("decode rows: %w", err)}
	}
	return rows, nil
}

func (s *Session) Insert(ctx context.Context, collection string, row any) (json.RawMessage, error) {
	h := http.Header{}
	h.Set("Prefer", "return=representation")
	op := "insert " + collection
	data, err := s.c.do(ctx, s.http, op, http.MethodPost, s.url(collection, nil), row, h)
	if err != nil {
		return nil, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, &apperr.GatewayError{Op: op, Err: fmt.Errorf("decode rows: %w", err)}
	}
	if len(rows) == 0 {
		return nil, &apperr.GatewayError{Op: op, Err: errors.New("no row returned")}
	}
	return rows[0], nil
}

func (s *Session) Update(ctx context.Context, collection string, patch map[string]any, filter gateway.Filter) error {
	h := http.Header{}
	h.Set("Prefer", "return=minimal")
	_, err := s.c.do(ctx, s.http, "update "+collection, http.MethodPatch, s.url(collection, encodeFilter(filter)), patch, h)
	return err
}

func (s *Session) Delete(ctx context.Context, collection string, filter gateway.Filter) error {
	h := http.Header{}
	h.Set("Prefer", "return=minimal")
	_, err := s.c.do(ctx, s.http, "delete "+collection, http.MethodDelete, s.url(collection, encodeFilter(filter)), nil, h)
	return err
}

func (s *Session) url(collection string, q url.Values) string {
	u := s.c.baseURL + "/rest/v1/" + url.PathEscape(s.c.table(collection))
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func encodeFilter(f gateway.Filter) url.Values {
	q := url.Values{}
	for _, c := range f {
		v := formatValue(c.Value)
		if c.Op == gateway.ILike {
			v = "*" + v + "*"
		}
		q.Add(c.Column, string(c.Op)+"."+v)
	}
	return q
}

func encodeOrder(order []gateway.Order) string {
	parts := make([]string, 0, len(order))
	for _, o := range order {
		p := o.Column + ".asc"
		if o.Descending {
			p = o.Column + ".desc"
		}
		if o.NullsLast {
			p += ".nullslast"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ",")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
