package satellite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/apex/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var ErrUnavailable = errors.New("earth engine session unavailable")

var Scopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/cloud-platform",
}

// Prompter shows the consent URL and reads back the authorization code.
type Prompter interface {
	Prompt(authURL string) (string, error)
}

// CredentialsFunc yields a token source for Earth Engine requests.
type CredentialsFunc func(ctx context.Context) (oauth2.TokenSource, error)

// DefaultCredentials uses Google application default credentials.
func DefaultCredentials(ctx context.Context) (oauth2.TokenSource, error) {
	creds, err := google.FindDefaultCredentials(ctx, Scopes...)
	if err != nil {
		return nil, err
	}
	if _, err := creds.TokenSource.Token(); err != nil {
		return nil, err
	}
	return creds.TokenSource, nil
}

// InteractiveCredentials runs the installed-app authorization code flow
// through prompter.
func InteractiveCredentials(clientID, clientSecret string, prompter Prompter) CredentialsFunc {
	return func(ctx context.Context) (oauth2.TokenSource, error) {
		if prompter == nil {
			return nil, errors.New("no interactive prompter available")
		}
		if clientID == "" {
			return nil, errors.New("GOOGLE_OAUTH_CLIENT_ID is not set")
		}
		config := &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  "http://localhost",
			Scopes:       Scopes,
		}
		code, err := prompter.Prompt(config.AuthCodeURL("earthengine", oauth2.AccessTypeOffline))
		if err != nil {
			return nil, err
		}
		token, err := config.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}
		return config.TokenSource(ctx, token), nil
	}
}

// Session is the process-lifetime Earth Engine connection. Initialization
// runs once: the primary credentials, then a single interactive retry. If
// both fail the session stays disabled.
type Session struct {
	once     sync.Once
	primary  CredentialsFunc
	fallback CredentialsFunc
	client   *http.Client
	err      error
}

func NewSession(primary, fallback CredentialsFunc) *Session {
	return &Session{primary: primary, fallback: fallback}
}

// Init authenticates once. The caller's deadline does not reach the
// credential flows: a cancelled caller must not disable the session for the
// rest of the process.
func (s *Session) Init(ctx context.Context) error {
	s.once.Do(func() {
		ctx := context.WithoutCancel(ctx)
		ts, err := s.primary(ctx)
		if err != nil {
			log.WithError(err).Warn("earth engine: default credentials failed, trying interactive authentication")
			if s.fallback == nil {
				s.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
				return
			}
			ts, err = s.fallback(ctx)
			if err != nil {
				log.WithError(err).Error("earth engine: authentication failed")
				s.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
				return
			}
		}
		s.client = oauth2.NewClient(context.Background(), ts)
		log.Info("earth engine: session ready")
	})
	return s.err
}

// HTTPClient returns the authorized client, initializing the session if needed.
func (s *Session) HTTPClient(ctx context.Context) (*http.Client, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s.client, nil
}
