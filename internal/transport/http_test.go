package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendGETCarriesAndRotatesSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("CompanionApp")
		if assert.NoError(t, err) {
			assert.Equal(t, "old", c.Value)
		}
		assert.Equal(t, "ocellus-test", r.UserAgent())
		http.SetCookie(w, &http.Cookie{Name: "CompanionApp", Value: "new", Path: "/"})
		io.WriteString(w, "hello")
	}))
	defer ts.Close()

	tr := NewHTTPTransport(5*time.Second, WithUserAgent("ocellus-test"))
	in := NewSession([]*http.Cookie{{Name: "CompanionApp", Value: "old"}})

	resp, err := tr.Send(context.Background(), Request{URL: ts.URL + "/profile"}, in)
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, "hello", resp.Body)
	v, ok := resp.Session.Value("CompanionApp")
	require.True(t, ok)
	assert.Equal(t, "new", v)

	// the input session is untouched
	v, _ = in.Value("CompanionApp")
	assert.Equal(t, "old", v)
}

func TestSendPOSTIsFormEncoded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "a+b@example.com", r.PostForm.Get("email"))
		assert.Equal(t, "p&ss=word", r.PostForm.Get("password"))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	tr := NewHTTPTransport(5 * time.Second)
	form := url.Values{}
	form.Set("email", "a+b@example.com")
	form.Set("password", "p&ss=word")

	resp, err := tr.Send(context.Background(), Request{
		URL:     ts.URL + "/user/login",
		PostURL: ts.URL + "/user/login",
		Form:    form,
	}, Session{})
	require.NoError(t, err)
	assert.Equal(t, "", resp.Body)
}

func TestSendKeepsCookiesAcrossPaths(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := r.Cookie("sid")
		assert.NoError(t, err, "path %s", r.URL.Path)
	}))
	defer ts.Close()

	tr := NewHTTPTransport(5 * time.Second)
	s := NewSession([]*http.Cookie{{Name: "sid", Value: "1"}})

	resp, err := tr.Send(context.Background(), Request{URL: ts.URL + "/user/login"}, s)
	require.NoError(t, err)
	_, err = tr.Send(context.Background(), Request{URL: ts.URL + "/profile"}, resp.Session)
	require.NoError(t, err)
}

func TestSendConnectionFailureIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := ts.URL
	ts.Close()

	tr := NewHTTPTransport(time.Second)
	in := NewSession([]*http.Cookie{{Name: "sid", Value: "keep"}})
	resp, err := tr.Send(context.Background(), Request{URL: addr}, in)
	require.Error(t, err)
	v, _ := resp.Session.Value("sid")
	assert.Equal(t, "keep", v)
}

func TestSendNonSuccessStatusIsNotAnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "Please correct the following")
	}))
	defer ts.Close()

	resp, err := NewHTTPTransport(time.Second).Send(context.Background(), Request{URL: ts.URL}, Session{})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Status, "401")
	assert.Equal(t, "Please correct the following", resp.Body)
}

func TestSessionJSON(t *testing.T) {
	s := NewSession([]*http.Cookie{
		{Name: "b", Value: "2", Domain: "example.com"},
		{Name: "a", Value: "1"},
	})
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"a","value":"1"},{"name":"b","value":"2"}]`, string(data))

	var back Session
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 2, back.Len())
	v, ok := back.Value("b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestSessionCookiesIsACopy(t *testing.T) {
	s := NewSession([]*http.Cookie{{Name: "a", Value: "1"}})
	s.Cookies()[0].Value = "mutated"
	v, _ := s.Value("a")
	assert.Equal(t, "1", v)
	assert.True(t, Session{}.IsZero())
}

func TestSendRejectsOversizedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("x", 17))
	}))
	defer ts.Close()

	tr := NewHTTPTransport(5*time.Second, WithMaxBody(16))
	_, err := tr.Send(context.Background(), Request{URL: ts.URL + "/profile"}, Session{})
	require.ErrorIs(t, err, ErrBodyTooLarge)

	tr = NewHTTPTransport(5*time.Second, WithMaxBody(17))
	resp, err := tr.Send(context.Background(), Request{URL: ts.URL + "/profile"}, Session{})
	require.NoError(t, err)
	assert.Len(t, resp.Body, 17)
}
