package consent

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kpango/glg"
	"github.com/stretchr/testify/require"

	"github.com/rking788/objective-tracker/bungie"
)

func setup() {
	glg.Get().SetLevelMode(glg.INFO, glg.NONE)
	glg.Get().SetLevelMode(glg.ERR, glg.NONE)
}

// redirectWith returns an Opener that plays the browser: it follows the authorize URL's
// state back to the callback with the given extra query values.
func redirectWith(t *testing.T, l *Loopback, values url.Values, state func(string) string) Opener {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		values.Set("state", state(u.Query().Get("state")))
		callback := l.CallbackURL() + "?" + values.Encode()

		go func() {
			resp, err := http.Get(callback)
			if err != nil {
				t.Log(err)
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		return nil
	}
}

func same(s string) string { return s }

func newLoopback() *Loopback {
	return &Loopback{
		Addr: "127.0.0.1:0",
		URLs: bungie.NewTokenClient("", "24297", "", ""),
	}
}

func TestAuthorizeReturnsCode(t *testing.T) {
	setup()
	l := newLoopback()
	l.Open = redirectWith(t, l, url.Values{"code": {"abc123"}}, same)

	code, err := l.Authorize(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc123", code)
}

func TestAuthorizeMissingCode(t *testing.T) {
	setup()
	l := newLoopback()
	l.Open = redirectWith(t, l, url.Values{"error": {"access_denied"}}, same)

	_, err := l.Authorize(context.Background())
	require.True(t, errors.Is(err, ErrNoCode))
}

func TestAuthorizeMissingCodePage(t *testing.T) {
	setup()
	l := newLoopback()

	pages := make(chan string, 1)
	l.Open = func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		callback := l.CallbackURL() + "?" + url.Values{"state": {u.Query().Get("state")}}.Encode()

		go func() {
			resp, err := http.Get(callback)
			if err != nil {
				pages <- err.Error()
				return
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			pages <- string(body)
		}()

		return nil
	}

	_, err := l.Authorize(context.Background())
	require.True(t, errors.Is(err, ErrNoCode))
	require.Equal(t, strings.ToLower(err.Error()), err.Error())
	require.NotContains(t, err.Error(), "Whoops")

	select {
	case page := <-pages:
		require.Contains(t, page, FailedMessage)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no callback page")
	}
}

func TestAuthorizeStateMismatch(t *testing.T) {
	setup()
	l := newLoopback()
	l.Open = redirectWith(t, l, url.Values{"code": {"abc123"}}, func(string) string { return "forged" })

	_, err := l.Authorize(context.Background())
	require.True(t, errors.Is(err, ErrNoCode))
}

func TestAuthorizeCanceled(t *testing.T) {
	setup()
	l := newLoopback()
	l.Open = func(string) error { return nil }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := l.Authorize(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAuthorizeURLCarriesState(t *testing.T) {
	setup()
	l := newLoopback()

	var seen string
	l.Open = func(authURL string) error {
		seen = authURL
		return errors.New("no browser")
	}

	_, err := l.Authorize(context.Background())
	require.EqualError(t, err, "no browser")

	u, err := url.Parse(seen)
	require.NoError(t, err)
	require.Equal(t, "24297", u.Query().Get("client_id"))
	require.NotEmpty(t, u.Query().Get("state"))
}
