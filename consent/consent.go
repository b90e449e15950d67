// Package consent runs the interactive OAuth consent step. The user authorizes in a
// browser and Bungie redirects back to a listener on the loopback interface, which hands
// the authorization code to the caller.
package consent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/kpango/glg"
)

// CallbackPath is the redirect path registered for the application.
const CallbackPath = "/callback"

// ErrNoCode is returned when the redirect did not carry an authorization code.
var ErrNoCode = errors.New("consent: no authorization code in the redirect")

// FailedMessage is the page shown in the browser when the redirect is rejected.
const FailedMessage = "Whoops! That didn't work. Give it another try when you're ready."

// URLBuilder creates the authorize page URL for a state value.
type URLBuilder interface {
	AuthCodeURL(state string) string
}

// Opener shows the authorize page to the user, usually by starting a browser.
type Opener func(authURL string) error

// PrintOpener asks the user to open the URL by hand.
func PrintOpener(authURL string) error {
	fmt.Printf("Open the following URL in a browser to log in with Bungie.net:\n\n  %s\n\n", authURL)
	return nil
}

// Loopback is a consent collaborator that listens for the OAuth redirect on Addr.
type Loopback struct {
	Addr  string
	URLs  URLBuilder
	Open  Opener
	addr  net.Addr
	state string
}

type result struct {
	code string
	err  error
}

// CallbackURL is the redirect target, valid once Authorize is listening.
func (l *Loopback) CallbackURL() string {
	addr := l.Addr
	if l.addr != nil {
		addr = l.addr.String()
	}

	return "http://" + addr + CallbackPath
}

func (l *Loopback) router(results chan<- result) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(CallbackPath, func(w http.ResponseWriter, req *http.Request) {
		query := req.URL.Query()

		var res result
		switch {
		case query.Get("state") != l.state:
			res.err = fmt.Errorf("%w (state mismatch)", ErrNoCode)
		case query.Get("code") == "":
			res.err = ErrNoCode
			if reason := query.Get("error_description"); reason != "" {
				res.err = fmt.Errorf("%w (%s)", ErrNoCode, reason)
			}
		default:
			res.code = query.Get("code")
		}

		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, FailedMessage)
		} else {
			fmt.Fprintln(w, "Logged in! You can close this window and return to the tracker.")
		}

		// Only the first redirect counts
		select {
		case results <- res:
		default:
		}
	}).Methods("GET")

	return r
}

// Authorize shows the authorize page and waits for the redirect. It returns the
// authorization code, or ErrNoCode when the user did not grant access.
func (l *Loopback) Authorize(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen for the OAuth redirect: %w", err)
	}
	l.addr = ln.Addr()
	l.state = uuid.New().String()

	results := make(chan result, 1)
	srv := &http.Server{
		Handler:           l.router(results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			glg.Errorf("OAuth redirect listener stopped: %s", err.Error())
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	open := l.Open
	if open == nil {
		open = PrintOpener
	}
	glg.Infof("Waiting for the OAuth redirect on %s", l.CallbackURL())
	if err := open(l.URLs.AuthCodeURL(l.state)); err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-results:
		return res.code, res.err
	}
}
