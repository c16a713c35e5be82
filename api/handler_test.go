package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/api"
	"github.com/xraph/nostr-relay/internal/nostrtest"
	"github.com/xraph/nostr-relay/observability"
	"github.com/xraph/nostr-relay/store/memory"
)

type fixture struct {
	relay *relay.Relay
	store *memory.Store
	srv   *httptest.Server
	h     *api.Handler
}

// testServer creates a Handler backed by a memory store and returns the test server.
func testServer(t *testing.T, cfg relay.Config) *fixture {
	t.Helper()

	s := memory.New()
	reg := prometheus.NewRegistry()
	r, err := relay.New(
		relay.WithStore(s),
		relay.WithConfig(cfg),
		relay.WithMetrics(observability.NewMetrics(reg)),
	)
	if err != nil {
		t.Fatal(err)
	}
	h := api.NewHandler(r, api.WithGatherer(reg))
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		r.Shutdown()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Close(ctx)
		srv.Close()
	})
	return &fixture{relay: r, store: s, srv: srv, h: h}
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func dial(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) []json.RawMessage {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		t.Fatalf("bad frame %s", data)
	}
	return parts
}

func labelOf(parts []json.RawMessage) string {
	var s string
	_ = json.Unmarshal(parts[0], &s)
	return s
}

// --- NIP-11 ---

func TestRelayInfo(t *testing.T) {
	cfg := relay.DefaultConfig()
	cfg.Info.Name = "test relay"
	cfg.Info.Contact = "ops@example.com"
	f := testServer(t, cfg)

	resp := get(t, f.srv.URL, http.Header{"Accept": {"application/nostr+json"}})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/nostr+json" {
		t.Fatalf("content type = %q", ct)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}

	var info api.Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Name != "test relay" || info.Contact != "ops@example.com" {
		t.Fatalf("info = %+v", info)
	}
	if len(info.SupportedNIPs) == 0 || info.SupportedNIPs[0] != 1 {
		t.Fatalf("supported_nips = %v", info.SupportedNIPs)
	}
	if info.Limitation.MaxSubscriptions != cfg.Limits.MaxSubscriptions || info.Limitation.AuthRequired {
		t.Fatalf("limitation = %+v", info.Limitation)
	}
}

func TestRelayInfoFollowsConfig(t *testing.T) {
	f := testServer(t, relay.DefaultConfig())

	cfg := f.relay.Config()
	cfg.Info.Name = "renamed"
	cfg.Auth.Enabled = true
	if err := f.relay.UpdateConfig(cfg); err != nil {
		t.Fatal(err)
	}

	info := api.BuildInfo(&cfg)
	if info.Name != "renamed" {
		t.Fatalf("name = %q", info.Name)
	}
	var has42 bool
	for _, n := range info.SupportedNIPs {
		has42 = has42 || n == 42
	}
	if !has42 {
		t.Fatal("NIP-42 not advertised with auth enabled")
	}
}

func TestPlainGet(t *testing.T) {
	f := testServer(t, relay.DefaultConfig())
	resp := get(t, f.srv.URL, nil)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "nostr client") {
		t.Fatalf("status = %d body = %q", resp.StatusCode, body)
	}
}

// --- Health and metrics ---

func TestHealthz(t *testing.T) {
	f := testServer(t, relay.DefaultConfig())

	resp := get(t, f.srv.URL+"/healthz", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	_ = f.store.Close()
	resp = get(t, f.srv.URL+"/healthz", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("closed store status = %d", resp.StatusCode)
	}
}

func TestMetrics(t *testing.T) {
	f := testServer(t, relay.DefaultConfig())
	ws := dial(t, f)
	_ = ws.WriteMessage(websocket.TextMessage, []byte(`garbage`))
	readFrame(t, ws)

	resp := get(t, f.srv.URL+"/metrics", nil)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "relay_protocol_errors_total 1") {
		t.Fatalf("metrics missing protocol error count:\n%s", body)
	}
}

// --- Websocket ---

func TestWebsocketPublishAndSubscribe(t *testing.T) {
	f := testServer(t, relay.DefaultConfig())
	sub := dial(t, f)
	pub := dial(t, f)

	if err := sub.WriteMessage(websocket.TextMessage, []byte(`["REQ","feed",{"kinds":[1]}]`)); err != nil {
		t.Fatal(err)
	}
	if l := labelOf(readFrame(t, sub)); l != "EOSE" {
		t.Fatalf("got %s, want EOSE", l)
	}

	evt := nostrtest.Signed(t, nostrtest.Signer(t), 1, 0, "hello")
	frame, _ := json.Marshal([]any{"EVENT", evt})
	if err := pub.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatal(err)
	}

	ok := readFrame(t, pub)
	var accepted bool
	_ = json.Unmarshal(ok[2], &accepted)
	if labelOf(ok) != "OK" || !accepted {
		t.Fatalf("OK frame = %s", ok)
	}

	got := readFrame(t, sub)
	if labelOf(got) != "EVENT" {
		t.Fatalf("got %s", got)
	}
	var delivered struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(got[2], &delivered)
	if delivered.ID != evt.ID {
		t.Fatalf("delivered %s, want %s", delivered.ID, evt.ID)
	}
}

func TestWebsocketAuthChallenge(t *testing.T) {
	cfg := relay.DefaultConfig()
	cfg.Auth.Enabled = true
	f := testServer(t, cfg)
	ws := dial(t, f)

	if l := labelOf(readFrame(t, ws)); l != "AUTH" {
		t.Fatalf("first frame %s, want AUTH", l)
	}
}

func TestWebsocketClosedOnShutdown(t *testing.T) {
	f := testServer(t, relay.DefaultConfig())
	ws := dial(t, f)

	f.relay.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.h.Close(ctx); err != nil {
		t.Fatal(err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("read after shutdown = %v, want going away", err)
	}
}

func TestWebsocketRefusedAfterClose(t *testing.T) {
	f := testServer(t, relay.DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.h.Close(ctx); err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial after Close succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("dial after Close = %v, %+v", err, resp)
	}
	resp.Body.Close()
}

func TestCloseRacesNewSessions(t *testing.T) {
	f := testServer(t, relay.DefaultConfig())
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/"

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
			if resp != nil {
				resp.Body.Close()
			}
			if err == nil {
				ws.Close()
			}
		}()
	}

	f.relay.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.h.Close(ctx); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	wg.Wait()
}

func TestClientPingKeepsConnectionAlive(t *testing.T) {
	cfg := relay.DefaultConfig()
	cfg.IdleTimeout = 150 * time.Millisecond
	cfg.PingInterval = 0
	f := testServer(t, cfg)
	ws := dial(t, f)

	var pongs atomic.Int32
	ws.SetPongHandler(func(string) error {
		pongs.Add(1)
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(30 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				if err := ws.WriteControl(websocket.PingMessage, []byte("hi"), time.Now().Add(time.Second)); err != nil {
					return
				}
			}
		}
	}()

	// Reading dispatches pongs; the idle timeout would close the
	// connection well before this deadline without the pings.
	_ = ws.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, _, err := ws.ReadMessage()
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("read = %v, want read deadline with connection open", err)
	}
	if pongs.Load() == 0 {
		t.Fatal("client pings were not answered")
	}
}
