// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/apperr"
	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/auth/authtest"
	"github.com/tollgate/tollgate/internal/auth/redisstore"
	"github.com/tollgate/tollgate/internal/channel"
	"github.com/tollgate/tollgate/internal/pubsub"
	"github.com/tollgate/tollgate/internal/web"
)

const siteHost = "site.test"

type requestLog struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *requestLog) RecordRequest(route string, status int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	l.counts[route+" "+http.StatusText(status)]++
}

func (l *requestLog) count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[key]
}

type apiFixture struct {
	srv      *httptest.Server
	creds    *authtest.Credentials
	outbox   *authtest.Outbox
	mr       *miniredis.Miniredis
	broker   *pubsub.Local
	requests *requestLog
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIWithBridge(t, nil)
}

// newAPIWithBridge builds the fixture around bridge, or a bridge on the
// fixture's local broker when bridge is nil.
func newAPIWithBridge(t *testing.T, bridge web.ChannelBridge) *apiFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &apiFixture{
		creds:    authtest.NewCredentials(),
		outbox:   &authtest.Outbox{},
		mr:       mr,
		broker:   pubsub.NewLocal(),
		requests: &requestLog{},
	}

	svc, err := auth.NewService(auth.Deps{
		Accounts:        f.creds.Accounts(),
		Authentications: f.creds.Authentications(),
		Sessions:        redisstore.New(rdb, nil),
		Mailer:          f.outbox,
		Tx:              f.creds,
		Stretcher:       auth.NewStretcher("pepper", 10),
	}, auth.Settings{
		MailDomain:            "example.com",
		ProvisionalSessionTTL: 24 * time.Hour,
		SessionTTL:            10 * 24 * time.Hour,
		PasswordResetCodeTTL:  time.Hour,
	})
	require.NoError(t, err)

	csrf, err := web.NewCSRF([]string{siteHost}, []string{"https://" + siteHost})
	require.NoError(t, err)

	if bridge == nil {
		bridge = channel.New(f.broker)
	}
	router := web.NewRouter(svc, bridge, web.Options{
		Version:        "1.2.3",
		BuildTimestamp: "2026-05-01T09:00:00Z",
		CSRF:           csrf,
		Metrics:        f.requests,
	})
	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+"/api/v1"+path, reader)
	require.NoError(t, err)
	req.Host = siteHost
	req.Header.Set("X-From", "web")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// assertErrorResponse checks the status line and error envelope of resp and
// returns the decoded body.
func assertErrorResponse(t *testing.T, resp *http.Response, status int, code string) map[string]any {
	t.Helper()
	assert.Equal(t, status, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, code, body["type"])
	assert.EqualValues(t, status, body["status"])
	return body
}

func cookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func setCookieHeader(resp *http.Response, name string) string {
	for _, v := range resp.Header.Values("Set-Cookie") {
		if strings.HasPrefix(v, name+"=") {
			return v
		}
	}
	return ""
}

func (f *apiFixture) signupCode(t *testing.T, mailAddr, password string) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/auth/signup", `{"mail":"`+mailAddr+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msg, ok := f.outbox.Last()
	require.True(t, ok)
	return msg.Body[strings.LastIndex(msg.Body, "=")+1:]
}

func (f *apiFixture) register(t *testing.T, mailAddr, password string) *http.Cookie {
	t.Helper()
	code := f.signupCode(t, mailAddr, password)
	resp := f.do(t, http.MethodPost, "/auth/signup/finish", `{"code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sid := cookie(resp, web.SessionCookie)
	require.NotNil(t, sid)
	return &http.Cookie{Name: web.SessionCookie, Value: sid.Value}
}

func TestAPI_SignupSendsLink(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, http.MethodPost, "/auth/signup", `{"mail":"a@b.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "OK"}, decodeBody(t, resp))

	msgs := f.outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "a@b.com", msgs[0].To)
	assert.Equal(t, "noreply@example.com", msgs[0].From)
	assert.Equal(t, "signup link", msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, "https://"+siteHost+"/signup/finish?code=")

	var provisional []string
	for _, k := range f.mr.Keys() {
		if strings.HasPrefix(k, redisstore.ProvisionalPrefix) {
			provisional = append(provisional, k)
		}
	}
	assert.Len(t, provisional, 1)
}

func TestAPI_SignupFinishIssuesSession(t *testing.T) {
	f := newAPI(t)
	code := f.signupCode(t, "a@b.com", "pw")

	resp := f.do(t, http.MethodPost, "/auth/signup/finish", `{"code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "OK"}, decodeBody(t, resp))

	sid := cookie(resp, web.SessionCookie)
	require.NotNil(t, sid)
	assert.GreaterOrEqual(t, len(sid.Value), 21)
	assert.LessOrEqual(t, len(sid.Value), 22)
	assert.Equal(t, "sid="+sid.Value+"; Path=/; Secure; SameSite=Strict",
		setCookieHeader(resp, web.SessionCookie))

	assert.Equal(t, 1, f.creds.AccountCount())
	_, found := f.creds.AuthenticationByMail("a@b.com")
	assert.True(t, found)
	assert.False(t, f.mr.Exists(redisstore.ProvisionalPrefix+code))
}

func TestAPI_SignupFinishFromQuery(t *testing.T) {
	f := newAPI(t)
	code := f.signupCode(t, "a@b.com", "pw")

	resp := f.do(t, http.MethodGet, "/auth/signup/finish?code="+code, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, cookie(resp, web.SessionCookie))
}

func TestAPI_SignupFinishUnknownCode(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, http.MethodPost, "/auth/signup/finish", `{"code":"nope"}`)
	body := assertErrorResponse(t, resp, http.StatusInternalServerError, apperr.CodeUnexpected)
	assert.Equal(t, "Internal Server Error", body["message"])
	assert.Nil(t, cookie(resp, web.SessionCookie))
}

func TestAPI_SigninRememberMe(t *testing.T) {
	f := newAPI(t)
	f.register(t, "a@b.com", "pw")

	resp := f.do(t, http.MethodPost, "/auth/signin", `{"mail":"a@b.com","password":"pw","remember_me":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, setCookieHeader(resp, web.SessionCookie), "Max-Age=864000")

	resp = f.do(t, http.MethodPost, "/auth/signin", `{"mail":"a@b.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, setCookieHeader(resp, web.SessionCookie), "Max-Age")
}

func TestAPI_SigninWrongPassword(t *testing.T) {
	f := newAPI(t)
	f.register(t, "a@b.com", "pw")

	for _, body := range []string{
		`{"mail":"a@b.com","password":"wrong"}`,
		`{"mail":"nobody@b.com","password":"pw"}`,
	} {
		resp := f.do(t, http.MethodPost, "/auth/signin", body)
		assertErrorResponse(t, resp, http.StatusForbidden, apperr.CodeInvalidEmailOrPassword)
		assert.Nil(t, cookie(resp, web.SessionCookie))
	}
}

func TestAPI_ForgetPasswordUnknownMail(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, http.MethodPost, "/auth/forget_password", `{"mail":"nobody@b.com"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "OK"}, decodeBody(t, resp))
	assert.Empty(t, f.outbox.Messages())
	assert.Empty(t, f.mr.Keys())
	assert.Contains(t, setCookieHeader(resp, web.SessionCookie), "Max-Age=0")
}

func TestAPI_PasswordReset(t *testing.T) {
	f := newAPI(t)
	f.register(t, "a@b.com", "pw")

	resp := f.do(t, http.MethodPost, "/auth/forget_password", `{"mail":"a@b.com"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msg, ok := f.outbox.Last()
	require.True(t, ok)
	assert.Equal(t, "password reset link", msg.Subject)
	assert.Contains(t, msg.Body, "https://"+siteHost+"/reset_password?code=")
	code := msg.Body[strings.LastIndex(msg.Body, "=")+1:]

	resp = f.do(t, http.MethodPost, "/auth/reset_password", `{"code":"`+code+`","password":"new"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/auth/signin", `{"mail":"a@b.com","password":"pw"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/auth/signin", `{"mail":"a@b.com","password":"new"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Validation(t *testing.T) {
	f := newAPI(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"invalid mail", "/auth/signup", `{"mail":"not-a-mail","password":"pw"}`},
		{"missing password", "/auth/signin", `{"mail":"a@b.com"}`},
		{"malformed json", "/auth/signup", `{"mail":`},
		{"empty body", "/auth/reset_password", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, tt.path, tt.body)
			assertErrorResponse(t, resp, http.StatusBadRequest, apperr.CodeBadRequest)
		})
	}
}

func TestAPI_AccountAndSignout(t *testing.T) {
	f := newAPI(t)
	sid := f.register(t, "a@b.com", "pw")

	resp := f.do(t, http.MethodGet, "/account/me", "", sid)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeBody(t, resp)
	assert.NotEmpty(t, me["id"])
	assert.Equal(t, me["id"], me["name"])
	assert.Equal(t, me["id"], me["display_name"])

	resp = f.do(t, http.MethodGet, "/account/"+me["id"].(string), "", sid)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/account/missing", "", sid)
	assertErrorResponse(t, resp, http.StatusNotFound, apperr.CodeNotFound)

	resp = f.do(t, http.MethodGet, "/auth/status", "", sid)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/auth/signout", "", sid)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, setCookieHeader(resp, web.SessionCookie), "Max-Age=0")

	resp = f.do(t, http.MethodGet, "/account/me", "", sid)
	assertErrorResponse(t, resp, http.StatusBadRequest, apperr.CodeInvalidSession)

	resp = f.do(t, http.MethodGet, "/auth/status", "", sid)
	assertErrorResponse(t, resp, http.StatusForbidden, apperr.CodeForbidden)
}

func TestAPI_SessionOfDeletedAccount(t *testing.T) {
	f := newAPI(t)
	sid := f.register(t, "a@b.com", "pw")

	resp := f.do(t, http.MethodGet, "/account/me", "", sid)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accountID, _ := decodeBody(t, resp)["id"].(string)
	require.NotEmpty(t, accountID)
	require.True(t, f.mr.Exists("session:"+sid.Value))

	f.creds.DeleteAccount(accountID)

	resp = f.do(t, http.MethodGet, "/account/me", "", sid)
	assertErrorResponse(t, resp, http.StatusBadRequest, apperr.CodeInvalidSession)
	assert.False(t, f.mr.Exists("session:"+sid.Value))

	resp = f.do(t, http.MethodGet, "/auth/status", "", sid)
	assertErrorResponse(t, resp, http.StatusForbidden, apperr.CodeForbidden)
}

func TestAPI_SessionCookieSelection(t *testing.T) {
	f := newAPI(t)
	sid := f.register(t, "a@b.com", "pw")

	resp := f.do(t, http.MethodGet, "/account/me", "",
		&http.Cookie{Name: web.SessionCookie, Value: "stale"},
		&http.Cookie{Name: "other", Value: "x"},
		sid,
	)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Status(t *testing.T) {
	f := newAPI(t)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/v1/status", nil)
	require.NoError(t, err)
	req.Host = "elsewhere.test"
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"status":          "OK",
		"version":         "1.2.3",
		"build_timestamp": "2026-05-01T09:00:00Z",
	}, decodeBody(t, resp))
	assert.Equal(t, 1, f.requests.count("/api/v1/status OK"))
}

func TestAPI_CSRFGate(t *testing.T) {
	f := newAPI(t)

	tests := []struct {
		name    string
		host    string
		headers map[string]string
		want    int
	}{
		{"unknown host", "evil.test", map[string]string{"X-From": "web"}, http.StatusForbidden},
		{"no x-from", siteHost, nil, http.StatusForbidden},
		{"foreign origin", siteHost, map[string]string{"X-From": "web", "Origin": "https://evil.test"}, http.StatusForbidden},
		{"allowed origin", siteHost, map[string]string{"X-From": "web", "Origin": "https://site.test"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/v1/auth/forget_password",
				bytes.NewReader([]byte(`{"mail":"nobody@b.com"}`)))
			require.NoError(t, err)
			req.Host = tt.host
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.want == http.StatusForbidden {
				assertErrorResponse(t, resp, http.StatusForbidden, apperr.CodeForbidden)
			}
		})
	}
}

func TestAPI_RequestIDAndTracking(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, http.MethodGet, "/auth/status", "")
	requestID := resp.Header.Get(web.RequestIDHeader)
	assert.NotEmpty(t, requestID)
	tid := cookie(resp, web.TrackingCookie)
	require.NotNil(t, tid)
	assert.Contains(t, setCookieHeader(resp, web.TrackingCookie), "Max-Age=31536000")

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/v1/auth/status", nil)
	require.NoError(t, err)
	req.Host = siteHost
	req.Header.Set("X-From", "web")
	req.Header.Set(web.RequestIDHeader, "abc123")
	req.AddCookie(&http.Cookie{Name: web.TrackingCookie, Value: tid.Value})
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()

	assert.Equal(t, "abc123", resp2.Header.Get(web.RequestIDHeader))
	again := cookie(resp2, web.TrackingCookie)
	require.NotNil(t, again)
	assert.Equal(t, tid.Value, again.Value)
}

func TestAPI_ChannelRequiresSession(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, http.MethodPost, "/channel/X", "payload")
	assertErrorResponse(t, resp, http.StatusBadRequest, apperr.CodeInvalidSession)
}

func TestAPI_ChannelPublish(t *testing.T) {
	f := newAPI(t)
	sid := f.register(t, "a@b.com", "pw")

	sub, err := f.broker.Subscribe(context.Background(), channel.Name("X"))
	require.NoError(t, err)
	defer sub.Close()

	resp := f.do(t, http.MethodPost, "/channel/X", "payload", sid)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, []byte("payload"), msg)
	case <-time.After(2 * time.Second):
		t.Fatal("payload not published")
	}
	assert.Equal(t, 1, f.requests.count("/api/v1/channel/{id} OK"))
}

func TestAPI_ChannelEvents(t *testing.T) {
	f := newAPI(t)
	sid := f.register(t, "a@b.com", "pw")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/v1/channel/X", nil)
	require.NoError(t, err)
	req.Host = siteHost
	req.Header.Set("Accept", "text/event-stream")
	req.AddCookie(sid)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return f.broker.Subscribers(channel.Name("X")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, f.broker.Publish(ctx, channel.Name("X"), []byte("hi")))

	buf := make([]byte, 0, 64)
	chunk := make([]byte, 64)
	for !bytes.Contains(buf, []byte("data: hi\n\n")) {
		n, err := resp.Body.Read(chunk)
		require.NoError(t, err)
		buf = append(buf, chunk[:n]...)
	}
}

// brokenStream fails after the event stream header has been sent.
type brokenStream struct {
	*channel.Bridge
}

func (brokenStream) ServeEvents(_ context.Context, w http.ResponseWriter, _ string) error {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "data: first\n\n")
	return fmt.Errorf("%w: connection reset", channel.ErrStreamStarted)
}

func TestAPI_ChannelEventsFailureAfterHeader(t *testing.T) {
	f := newAPIWithBridge(t, brokenStream{channel.New(pubsub.NewLocal())})
	sid := f.register(t, "a@b.com", "pw")

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/v1/channel/X", nil)
	require.NoError(t, err)
	req.Host = siteHost
	req.AddCookie(sid)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "data: first\n\n", string(body))
}

func dialSocket(t *testing.T, f *apiFixture, sid *http.Cookie) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Host", siteHost)
	header.Set("Cookie", sid.String())
	dialer := websocket.Dialer{Subprotocols: []string{channel.Subprotocol}}
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/v1/channel/X/socket"
	conn, resp, err := dialer.Dial(url, header)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestAPI_ChannelSocketRelay(t *testing.T) {
	f := newAPI(t)
	sid := f.register(t, "a@b.com", "pw")

	alice := dialSocket(t, f, sid)
	bob := dialSocket(t, f, sid)
	require.Eventually(t, func() bool {
		return f.broker.Subscribers(channel.Name("X")) == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, alice.WriteMessage(websocket.BinaryMessage, []byte{0xDE, 0xAD}))

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(time.Second)))
	start := time.Now()
	messageType, data, err := bob.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, []byte{0xDE, 0xAD}, data)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAPI_ChannelSocketRejectsForeignOrigin(t *testing.T) {
	f := newAPI(t)
	sid := f.register(t, "a@b.com", "pw")

	header := http.Header{}
	header.Set("Host", siteHost)
	header.Set("Origin", "https://evil.test")
	header.Set("Cookie", sid.String())
	dialer := websocket.Dialer{Subprotocols: []string{channel.Subprotocol}}
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/v1/channel/X/socket"
	_, resp, err := dialer.Dial(url, header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
