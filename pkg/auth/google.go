package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/harrisonrobin/taskdeck/pkg/logging"
)

// LocalhostAuthPort receives the OAuth redirect during `calendar auth`.
const LocalhostAuthPort = "6789"

// GoogleConfig builds an oauth2.Config from credentials.json in the config
// directory, pinning localhost redirects to LocalhostAuthPort.
func GoogleConfig(scopes []string, log *zap.Logger) (*oauth2.Config, error) {
	log = logging.OrNop(log)
	secrets, err := Path(ClientSecretsFile)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(secrets)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", secrets, err)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	parsed, err := url.Parse(cfg.RedirectURL)
	switch {
	case cfg.RedirectURL == "urn:ietf:wg:oauth:2.0:oob" || cfg.RedirectURL == "":
		cfg.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	case err == nil && (parsed.Hostname() == "localhost" || parsed.Hostname() == "127.0.0.1"):
		if parsed.Port() != LocalhostAuthPort {
			parsed.Host = net.JoinHostPort(parsed.Hostname(), LocalhostAuthPort)
			cfg.RedirectURL = parsed.String()
		}
	default:
		log.Warn("redirect URL is not a localhost callback", zap.String("redirect_url", cfg.RedirectURL))
	}
	return cfg, nil
}

// GoogleClient returns an auto-refreshing client for scopes. Without a cached
// token it fails unless interactive is set, in which case the browser flow
// runs and prompts on out.
func GoogleClient(ctx context.Context, scopes []string, interactive bool, out io.Writer, log *zap.Logger) (*http.Client, error) {
	log = logging.OrNop(log)
	cfg, err := GoogleConfig(scopes, log)
	if err != nil {
		return nil, err
	}
	path, err := Path(GoogleTokenFile)
	if err != nil {
		return nil, err
	}

	tok, err := LoadToken(path)
	if err != nil {
		if !interactive {
			return nil, fmt.Errorf("no Google token at %s, run `taskdeck calendar auth` first", path)
		}
		log.Info("no Google token, starting web authorization", zap.String("path", path))
		if tok, err = tokenFromWeb(ctx, cfg, out, log); err != nil {
			return nil, fmt.Errorf("failed to get token from web: %w", err)
		}
		if err := SaveToken(path, tok); err != nil {
			return nil, err
		}
	}

	src := NewPersistingSource(cfg.TokenSource(ctx, tok), path, tok, log)
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// tokenFromWeb runs the authorization code flow with a one-shot local server
// capturing the redirect.
func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, out io.Writer, log *zap.Logger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", net.JoinHostPort("localhost", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- errors.New("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprint(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open the following URL in your browser to authorize taskdeck:\n%s\n", authURL)
	log.Debug("waiting for authorization code", zap.String("redirect_url", cfg.RedirectURL))

	select {
	case code := <-codeCh:
		exCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := cfg.Exchange(exCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, errors.New("authorization timed out, please try again")
	}
}
