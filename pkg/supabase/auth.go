package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/gateway"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

func (r tokenResponse) token(now time.Time) (*oauth2.Token, error) {
	if r.AccessToken == "" {
		return nil, errors.New("no access token in response")
	}
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
	}
	if r.ExpiresIn > 0 {
		tok.Expiry = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tok, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn exchanges e-mail and password for a session token.
func (c *Client) SignIn(ctx context.Context, email, password string) (*oauth2.Token, error) {
	if email == "" || password == "" {
		return nil, &apperr.ValidationError{Msg: "email and password are required"}
	}
	return c.grant(ctx, "sign in", "password", credentials{Email: email, Password: password})
}

// SignUp registers a new account. The user signs in afterwards.
func (c *Client) SignUp(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return &apperr.ValidationError{Msg: "email and password are required"}
	}
	_, err := c.do(ctx, c.http, "sign up", http.MethodPost, c.baseURL+"/auth/v1/signup", credentials{Email: email, Password: password}, nil)
	return err
}

// Refresh trades a refresh token for a new session token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, apperr.ErrAuthRequired
	}
	return c.grant(gateway.WithIdempotent(ctx), "refresh session", "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// SignOut revokes the session server-side.
func (c *Client) SignOut(ctx context.Context, tok *oauth2.Token) error {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok.AccessToken)
	_, err := c.do(ctx, c.http, "sign out", http.MethodPost, c.baseURL+"/auth/v1/logout", nil, h)
	return err
}

func (c *Client) grant(ctx context.Context, op, grantType string, body any) (*oauth2.Token, error) {
	data, err := c.do(ctx, c.http, op, http.MethodPost, c.baseURL+"/auth/v1/token?grant_type="+grantType, body, nil)
	if err != nil {
		return nil, err
	}
	var resp tokenResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &apperr.GatewayError{Op: op, Err: fmt.Errorf("decode token: %w", err)}
	}
	tok, err := resp.token(time.Now())
	if err != nil {
		return nil, &apperr.GatewayError{Op: op, Err: err}
	}
	return tok, nil
}

// refresher is the oauth2.TokenSource behind a session: every call performs
// a refresh and remembers the rotated refresh token.
type refresher struct {
	c       *Client
	timeout time.Duration

	mu      sync.Mutex
	refresh string
}

func (r *refresher) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	tok, err := r.c.Refresh(ctx, r.refresh)
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken != "" {
		r.refresh = tok.RefreshToken
	}
	return tok, nil
}

// UserFromToken reads the subject and e-mail claims of an access token. The
// signature is the server's business; it rejects forged tokens on use.
func UserFromToken(accessToken string) (*model.User, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("access token has no subject")
	}
	email, _ := claims["email"].(string)
	return &model.User{ID: sub, Email: email}, nil
}
