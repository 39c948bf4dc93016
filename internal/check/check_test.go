package check

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/securepool/pincheck/internal/config"
	"github.com/securepool/pincheck/internal/pin"
)

const foreignPin = "bWsw3WqdtgiEWsOtKrjFEOAjebBzD4GruTg+uO0mQ8g="

// backend is a TLS test server with the endpoints of the pool game API.
type backend struct {
	srv *httptest.Server

	mu        sync.Mutex
	loginBody map[string]any
	authz     string
	hosts     []string
}

func (b *backend) seenHosts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.hosts...)
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.authz = r.Header.Get("Authorization")
		b.hosts = append(b.hosts, r.Host)
		b.mu.Unlock()
		if r.URL.Path == "/utf8" {
			// 199 ASCII bytes then a two-byte rune straddling the snippet limit.
			_, _ = w.Write([]byte(strings.Repeat("a", maxSnippet-1) + "é tail"))
			return
		}
		_, _ = w.Write([]byte("  SecurePool backend\n  running  "))
	})
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.loginBody = body
		b.mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
	})
	mux.HandleFunc("/socket.io/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hosts = append(b.hosts, r.Host)
		b.mu.Unlock()
		if !websocket.IsWebSocketUpgrade(r) {
			http.Error(w, "Transport unknown", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	})

	b.srv = httptest.NewTLSServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

// target returns a check Target pointing at the backend and expecting want.
func (b *backend) target(t *testing.T, want ...string) Target {
	t.Helper()
	if len(want) == 0 {
		want = []string{b.pin()}
	}
	set, err := pin.NewSet(want...)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	port := b.srv.Listener.Addr().(*net.TCPAddr).Port
	return Target{
		Pin:  pin.Target{Host: "127.0.0.1", Port: port, Timeout: 2 * time.Second},
		Kind: pin.KindCertificate,
		Pins: set,
	}
}

func (b *backend) pin() string { return pin.FromDER(b.srv.Certificate().Raw) }

func mustNew(t *testing.T, def config.Check, tgt Target) Check {
	t.Helper()
	c, err := New(def, tgt)
	if err != nil {
		t.Fatalf("New(%+v) error = %v", def, err)
	}
	return c
}

func downTarget(t *testing.T) Target {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := lis.Addr().(*net.TCPAddr).Port
	lis.Close()
	set, _ := pin.NewSet(foreignPin)
	return Target{Pin: pin.Target{Host: "127.0.0.1", Port: port, Timeout: time.Second}, Pins: set}
}

func TestPinCheck(t *testing.T) {
	b := newBackend(t)

	t.Run("pass", func(t *testing.T) {
		res := mustNew(t, config.Check{Name: "pin", Type: config.TypePin}, b.target(t)).Run(context.Background())
		if res.Status != StatusPass {
			t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
		}
		if res.Pin != b.pin() {
			t.Errorf("Pin = %q, want %q", res.Pin, b.pin())
		}
		if !res.NotAfter.Equal(b.srv.Certificate().NotAfter) {
			t.Errorf("NotAfter = %v", res.NotAfter)
		}
	})

	t.Run("mismatch is fail", func(t *testing.T) {
		res := mustNew(t, config.Check{Name: "pin", Type: config.TypePin}, b.target(t, foreignPin)).Run(context.Background())
		if res.Status != StatusFail {
			t.Fatalf("Status = %s, want fail", res.Status)
		}
		var me *pin.MismatchError
		if !errors.As(res.Err, &me) {
			t.Fatalf("Err = %v, want *pin.MismatchError", res.Err)
		}
		if res.Pin != b.pin() {
			t.Errorf("Pin = %q, want the observed pin %q", res.Pin, b.pin())
		}
	})

	t.Run("refused is error", func(t *testing.T) {
		res := mustNew(t, config.Check{Name: "pin", Type: config.TypePin}, downTarget(t)).Run(context.Background())
		if res.Status != StatusError {
			t.Fatalf("Status = %s, want error", res.Status)
		}
		var ce *pin.ConnectivityError
		if !errors.As(res.Err, &ce) {
			t.Fatalf("Err = %v, want *pin.ConnectivityError", res.Err)
		}
		var me *pin.MismatchError
		if errors.As(res.Err, &me) {
			t.Fatal("refused connection reported as mismatch")
		}
	})
}

func TestHTTPCheck_AnyStatusIsReachable(t *testing.T) {
	b := newBackend(t)
	def := config.Check{Name: "backend", Type: config.TypeHTTP, Path: "/"}

	res := mustNew(t, def, b.target(t)).Run(context.Background())
	if res.Status != StatusPass {
		t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
	}
	if res.HTTPStatus != http.StatusOK {
		t.Errorf("HTTPStatus = %d", res.HTTPStatus)
	}
	if res.Detail != "status 200: SecurePool backend running" {
		t.Errorf("Detail = %q", res.Detail)
	}
}

func TestHTTPCheck_LoginPostsJSON(t *testing.T) {
	b := newBackend(t)
	def := config.Check{
		Name:   "login",
		Type:   config.TypeHTTP,
		Method: "post",
		Path:   "/api/login",
		Body:   map[string]any{"username": "testuser", "password": "testpass"},
	}

	res := mustNew(t, def, b.target(t)).Run(context.Background())
	if res.Status != StatusPass {
		t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
	}
	if res.HTTPStatus != http.StatusUnauthorized {
		t.Errorf("HTTPStatus = %d, want 401", res.HTTPStatus)
	}
	if !strings.Contains(res.Detail, "Invalid credentials") {
		t.Errorf("Detail = %q, want response body", res.Detail)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loginBody["username"] != "testuser" || b.loginBody["password"] != "testpass" {
		t.Errorf("server received %v", b.loginBody)
	}
}

func TestHTTPCheck_UnexpectedStatus(t *testing.T) {
	b := newBackend(t)
	def := config.Check{
		Name:         "login",
		Type:         config.TypeHTTP,
		Method:       http.MethodPost,
		Path:         "/api/login",
		ExpectStatus: []int{http.StatusOK},
	}

	res := mustNew(t, def, b.target(t)).Run(context.Background())
	if res.Status != StatusFail {
		t.Fatalf("Status = %s, want fail", res.Status)
	}
	var ee *EndpointError
	if !errors.As(res.Err, &ee) {
		t.Fatalf("Err = %v, want *EndpointError", res.Err)
	}
	if ee.Status != http.StatusUnauthorized || ee.Path != "/api/login" || ee.Method != http.MethodPost {
		t.Errorf("EndpointError = %+v", ee)
	}
}

func TestHTTPCheck_SocketIOStatuses(t *testing.T) {
	b := newBackend(t)
	def := config.DefaultChecks()[3]

	res := mustNew(t, def, b.target(t)).Run(context.Background())
	if res.Status != StatusPass {
		t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
	}
	if res.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want 400", res.HTTPStatus)
	}
}

func TestHTTPCheck_Refused(t *testing.T) {
	def := config.Check{Name: "backend", Type: config.TypeHTTP, Path: "/"}
	res := mustNew(t, def, downTarget(t)).Run(context.Background())
	if res.Status != StatusError {
		t.Fatalf("Status = %s, want error", res.Status)
	}
	var ee *EndpointError
	if !errors.As(res.Err, &ee) || ee.Status != 0 {
		t.Fatalf("Err = %v, want *EndpointError without status", res.Err)
	}
}

func TestHTTPCheck_EnforcePin(t *testing.T) {
	b := newBackend(t)
	def := config.Check{Name: "backend", Type: config.TypeHTTP, Path: "/"}

	tgt := b.target(t)
	tgt.EnforcePin = true
	if res := mustNew(t, def, tgt).Run(context.Background()); res.Status != StatusPass {
		t.Fatalf("matching pin: Status = %s, err = %v", res.Status, res.Err)
	}

	tgt = b.target(t, foreignPin)
	tgt.EnforcePin = true
	res := mustNew(t, def, tgt).Run(context.Background())
	if res.Status != StatusFail {
		t.Fatalf("foreign pin: Status = %s, want fail", res.Status)
	}
	var me *pin.MismatchError
	if !errors.As(res.Err, &me) {
		t.Fatalf("Err = %v, want *pin.MismatchError", res.Err)
	}
}

func TestHTTPCheck_BearerAuth(t *testing.T) {
	t.Setenv("PINCHECK_TEST_TOKEN", "tok123")
	b := newBackend(t)
	def := config.Check{
		Name: "backend",
		Type: config.TypeHTTP,
		Path: "/",
		Auth: config.AuthConfig{Mode: "bearer", TokenEnv: "PINCHECK_TEST_TOKEN"},
	}

	if res := mustNew(t, def, b.target(t)).Run(context.Background()); res.Status != StatusPass {
		t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.authz != "Bearer tok123" {
		t.Errorf("Authorization = %q", b.authz)
	}
}

func TestApplyAuth(t *testing.T) {
	t.Setenv("PINCHECK_TEST_KEY", "k")
	t.Setenv("PINCHECK_TEST_PASS", "p")
	tests := []struct {
		name   string
		auth   config.AuthConfig
		header string
		want   string
	}{
		{"apikey", config.AuthConfig{Mode: "apikey", Header: "X-API-Key", KeyEnv: "PINCHECK_TEST_KEY"}, "X-API-Key", "k"},
		{"basic", config.AuthConfig{Mode: "basic", Username: "u", PasswordEnv: "PINCHECK_TEST_PASS"}, "Authorization", "Basic dTpw"},
		{"none", config.AuthConfig{Mode: "none"}, "Authorization", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			applyAuth(h, tc.auth)
			if got := h.Get(tc.header); got != tc.want {
				t.Errorf("%s = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}

func TestWebSocketCheck(t *testing.T) {
	b := newBackend(t)
	def := config.Check{Name: "socket", Type: config.TypeWebSocket, Path: "/socket.io/?EIO=4&transport=websocket"}

	res := mustNew(t, def, b.target(t)).Run(context.Background())
	if res.Status != StatusPass {
		t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
	}
	if res.HTTPStatus != http.StatusSwitchingProtocols {
		t.Errorf("HTTPStatus = %d, want 101", res.HTTPStatus)
	}
}

func TestWebSocketCheck_UpgradeRefused(t *testing.T) {
	b := newBackend(t)
	def := config.Check{Name: "socket", Type: config.TypeWebSocket, Path: "/api/login"}

	res := mustNew(t, def, b.target(t)).Run(context.Background())
	if res.Status != StatusFail {
		t.Fatalf("Status = %s, want fail", res.Status)
	}
	var ee *EndpointError
	if !errors.As(res.Err, &ee) || ee.Status != http.StatusMethodNotAllowed {
		t.Fatalf("Err = %v, want *EndpointError with 405", res.Err)
	}
}

func TestWebSocketCheck_EnforcePin(t *testing.T) {
	b := newBackend(t)
	def := config.Check{Name: "socket", Type: config.TypeWebSocket, Path: "/socket.io/"}

	tgt := b.target(t, foreignPin)
	tgt.EnforcePin = true
	res := mustNew(t, def, tgt).Run(context.Background())
	if res.Status != StatusFail {
		t.Fatalf("Status = %s, want fail", res.Status)
	}
	var me *pin.MismatchError
	if !errors.As(res.Err, &me) {
		t.Fatalf("Err = %v, want *pin.MismatchError", res.Err)
	}
}

func TestNew_UnknownType(t *testing.T) {
	if _, err := New(config.Check{Name: "x", Type: "ftp"}, Target{}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestNew_MissingClientCert(t *testing.T) {
	def := config.Check{
		Name: "x", Type: config.TypeHTTP, Path: "/",
		Auth: config.AuthConfig{Mode: "mtls", CertFile: "/nonexistent.crt", KeyFile: "/nonexistent.key"},
	}
	if _, err := New(def, Target{}); err == nil {
		t.Fatal("expected error for missing client certificate")
	}
}

func TestHTTPCheck_ServerNameSetsHostHeader(t *testing.T) {
	b := newBackend(t)
	def := config.Check{Name: "backend", Type: config.TypeHTTP, Path: "/"}

	tgt := b.target(t)
	if res := mustNew(t, def, tgt).Run(context.Background()); res.Status != StatusPass {
		t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
	}
	tgt.Pin.ServerName = "api.securepool.test"
	if res := mustNew(t, def, tgt).Run(context.Background()); res.Status != StatusPass {
		t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
	}

	hosts := b.seenHosts()
	if len(hosts) != 2 {
		t.Fatalf("requests = %d, want 2", len(hosts))
	}
	if hosts[0] != tgt.Pin.Addr() {
		t.Errorf("Host without server name = %q, want %q", hosts[0], tgt.Pin.Addr())
	}
	if hosts[1] != "api.securepool.test" {
		t.Errorf("Host with server name = %q, want api.securepool.test", hosts[1])
	}
}

func TestWebSocketCheck_ServerNameSetsHostHeader(t *testing.T) {
	b := newBackend(t)
	def := config.Check{Name: "socketio", Type: config.TypeWebSocket, Path: "/socket.io/"}

	tgt := b.target(t)
	tgt.Pin.ServerName = "api.securepool.test"
	if res := mustNew(t, def, tgt).Run(context.Background()); res.Status != StatusPass {
		t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
	}
	if hosts := b.seenHosts(); len(hosts) != 1 || hosts[0] != "api.securepool.test" {
		t.Errorf("hosts = %v, want [api.securepool.test]", hosts)
	}
}

func TestHTTPCheck_SnippetKeepsValidUTF8(t *testing.T) {
	b := newBackend(t)
	def := config.Check{Name: "backend", Type: config.TypeHTTP, Path: "/utf8"}

	res := mustNew(t, def, b.target(t)).Run(context.Background())
	if res.Status != StatusPass {
		t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
	}
	if !utf8.ValidString(res.Detail) {
		t.Fatalf("Detail is not valid UTF-8: %q", res.Detail)
	}
	if want := "status 200: " + strings.Repeat("a", maxSnippet-1); res.Detail != want {
		t.Errorf("Detail = %q, want %q", res.Detail, want)
	}
}

func TestTrimPartialRune(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"ascii", []byte("abc"), "abc"},
		{"complete rune", []byte("abé"), "abé"},
		{"cut two-byte rune", []byte{'a', 0xc3}, "a"},
		{"cut three-byte rune", []byte{'a', 0xe2, 0x82}, "a"},
		{"cut four-byte rune", []byte{'a', 0xf0, 0x9f, 0x94}, "a"},
		{"empty", nil, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(trimPartialRune(tc.in)); got != tc.want {
				t.Errorf("trimPartialRune(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
