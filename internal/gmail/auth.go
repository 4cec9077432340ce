package gmail

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailgroom/internal/errs"
)

const (
	credentialsFile = "credentials.json"
	tokenFile       = "token.json"
)

// NewService initializes an OAuth-backed Gmail service using:
// - Client credentials at <dataDir>/credentials.json
// - Token cache at <dataDir>/token.json (0600)
// Scopes: gmail.labels, gmail.settings.basic and gmail.modify. If forceAuth
// is set, any cached token is discarded and the flow runs from scratch.
func NewService(ctx context.Context, dataDir string, forceAuth bool) (*gmailv1.Service, error) {
	credPath := filepath.Join(dataDir, credentialsFile)
	b, err := os.ReadFile(credPath)
	if err != nil {
		return nil, errs.New(errs.KindAuth, fmt.Errorf("read credentials at %s: %w", credPath, err))
	}

	cfg, err := google.ConfigFromJSON(b,
		gmailv1.GmailLabelsScope,
		gmailv1.GmailSettingsBasicScope,
		gmailv1.GmailModifyScope,
	)
	if err != nil {
		return nil, errs.New(errs.KindAuth, fmt.Errorf("parse oauth config: %w", err))
	}

	tokPath := filepath.Join(dataDir, tokenFile)
	if forceAuth {
		os.Remove(tokPath)
	}

	tok, err := readToken(tokPath)
	if err == nil {
		// Validate the cached token by making a lightweight API call.
		client := cfg.Client(ctx, tok)
		svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(client))
		if err == nil {
			_, err = svc.Users.GetProfile("me").Do()
		}
		if err == nil {
			return svc, nil
		}
		// Token is invalid or expired beyond refresh; fall through to re-auth.
		os.Remove(tokPath)
	}

	tok, err = tokenFromWeb(ctx, cfg)
	if err != nil {
		return nil, errs.New(errs.KindAuth, err)
	}
	if err := saveToken(tokPath, tok); err != nil {
		return nil, err
	}

	client := cfg.Client(ctx, tok)
	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, errs.New(errs.KindAuth, fmt.Errorf("create gmail service: %w", err))
	}
	return svc, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// saveToken writes the token atomically with owner-only permissions.
func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Rename(tmp, path)
}

// tokenFromWeb runs a loopback HTTP server to capture the auth code and
// falls back to manual paste (code or full redirect URL) on timeout.
func tokenFromWeb(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	type result struct {
		code string
		err  error
	}
	resCh := make(chan result, 1)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err == nil {
		port := ln.Addr().(*net.TCPAddr).Port
		redirect := fmt.Sprintf("http://127.0.0.1:%d/", port)
		oldRedirect := cfg.RedirectURL
		cfg.RedirectURL = redirect

		mux := http.NewServeMux()
		srv := &http.Server{
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           mux,
		}
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authentication complete. You can close this window.")
			select {
			case resCh <- result{code: code}:
			default:
			}
			go func() { _ = srv.Shutdown(context.Background()) }()
		})
		go func() { _ = srv.Serve(ln) }()

		authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		fmt.Fprintln(os.Stderr, "A browser window will open. If it does not, copy this URL:")
		fmt.Fprintln(os.Stderr, authURL)
		fmt.Fprintf(os.Stderr, "Waiting for redirect on %s …\n", redirect)

		select {
		case <-ctx.Done():
			cfg.RedirectURL = oldRedirect
			return nil, ctx.Err()
		case r := <-resCh:
			if r.err != nil {
				return nil, r.err
			}
			tok, err := cfg.Exchange(ctx, strings.TrimSpace(r.code))
			if err != nil {
				return nil, fmt.Errorf("token exchange: %w", err)
			}
			cfg.RedirectURL = oldRedirect
			return tok, nil
		case <-time.After(120 * time.Second):
			cfg.RedirectURL = oldRedirect
			fmt.Fprintln(os.Stderr, "Timeout waiting for redirect; falling back to manual paste.")
		}
	}

	// Manual paste fallback.
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintln(os.Stderr, "Open this URL in your browser to authorize mailgroom:")
	fmt.Fprintln(os.Stderr, authURL)
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Paste the AUTH CODE itself or the FULL redirect URL here, then press Enter.")
	fmt.Fprint(os.Stderr, "> ")

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read auth code: %w", err)
		}
		return nil, errors.New("empty authorization code")
	}
	input := strings.TrimSpace(sc.Text())
	if input == "" {
		return nil, errors.New("empty authorization code")
	}

	code := input
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		u, err := url.Parse(input)
		if err != nil {
			return nil, fmt.Errorf("parse redirect URL: %w", err)
		}
		c := u.Query().Get("code")
		if c == "" {
			return nil, errors.New("no 'code' parameter found in pasted URL")
		}
		code = c
	}

	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return tok, nil
}
