package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/taskdeck/pkg/config"
)

const (
	// SessionFile caches the data-service session (access + refresh token).
	SessionFile = "session.json"
	// GoogleTokenFile caches the Google Calendar OAuth token.
	GoogleTokenFile = "google_token.json"
	// ClientSecretsFile is the Google API credentials.json downloaded from the cloud console.
	ClientSecretsFile = "credentials.json"
)

// Path joins name onto the taskdeck config directory.
func Path(name string) (string, error) {
	dir, err := config.GetXdgHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// LoadToken reads an oauth2.Token from a JSON file.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken writes tok to path, readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

// RemoveToken deletes a cached token; a missing file is fine.
func RemoveToken(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not delete token file '%s': %w", path, err)
	}
	return nil
}

// PersistingSource re-saves the token whenever the wrapped source hands out
// a refreshed one.
type PersistingSource struct {
	src  oauth2.TokenSource
	path string
	log  *zap.Logger

	mu   sync.Mutex
	last string
}

func NewPersistingSource(src oauth2.TokenSource, path string, initial *oauth2.Token, log *zap.Logger) *PersistingSource {
	p := &PersistingSource{src: src, path: path, log: log}
	if initial != nil {
		p.last = initial.AccessToken + "\x00" + initial.RefreshToken
	}
	return p
}

func (p *PersistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	key := tok.AccessToken + "\x00" + tok.RefreshToken
	p.mu.Lock()
	defer p.mu.Unlock()
	if key != p.last {
		if err := SaveToken(p.path, tok); err != nil {
			if p.log != nil {
				p.log.Warn("could not save refreshed token", zap.String("path", p.path), zap.Error(err))
			}
		} else {
			p.last = key
		}
	}
	return tok, nil
}
