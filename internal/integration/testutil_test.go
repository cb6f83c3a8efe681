package integration_test

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
	"pkt.systems/tabstrip/core"
	"pkt.systems/tabstrip/httpapi"
	"pkt.systems/tabstrip/internal/eventbus"
	"pkt.systems/tabstrip/schema"
	"pkt.systems/tabstrip/sshserver"
)

type sinkList []core.EventSink

func (s sinkList) OnState(event schema.StateEvent) {
	for _, sink := range s {
		sink.OnState(event)
	}
}

func (s sinkList) OnWindowClosed(windowID schema.WindowID) {
	for _, sink := range s {
		sink.OnWindowClosed(windowID)
	}
}

type testServer struct {
	logger   pslog.Logger
	registry *core.Registry
	hub      *httpapi.Hub
	bus      *eventbus.Bus
	httpSrv  *httpapi.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})
	hub := httpapi.NewHub(256, schema.DefaultFlipDurationMs)
	bus := eventbus.New(logger)
	registry := core.NewRegistry(core.RegistryDeps{
		EventSink: sinkList{hub, bus},
		Logger:    logger,
	})
	httpSrv := httpapi.NewServer(httpapi.Config{
		Addr:            "127.0.0.1:0",
		SessionCookie:   "tabstrip_session",
		SessionTTLHours: 1,
		HubHistory:      256,
		FlipDurationMs:  schema.DefaultFlipDurationMs,
		Theme:           string(schema.DefaultTheme),
	}, registry, hub)
	return &testServer{
		logger:   logger,
		registry: registry,
		hub:      hub,
		bus:      bus,
		httpSrv:  httpSrv,
	}
}

func (ts *testServer) startHTTP(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(ts.httpSrv.Handler())
	t.Cleanup(server.Close)
	return server
}

// startSSH serves SSH on a loopback listener. An empty authorizedKeys path
// accepts every client.
func (ts *testServer) startSSH(t *testing.T, authorizedKeys string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(pslog.ContextWithLogger(context.Background(), ts.logger))
	server := &sshserver.Server{
		Config: sshserver.Config{
			Addr:               ln.Addr().String(),
			HostKeyPath:        filepath.Join(t.TempDir(), "host_key"),
			AuthorizedKeysPath: authorizedKeys,
			Prompt:             "> ",
			Theme:              string(schema.DefaultTheme),
			FlipDurationMs:     schema.DefaultFlipDurationMs,
		},
		Listener: ln,
		Registry: ts.registry,
		EventBus: ts.bus,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = ln.Close()
		<-done
	})
	return ln.Addr().String()
}

func newBrowserClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar}
}

func writeJSON(t *testing.T, client *http.Client, method, url string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func readJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode >= 300 {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if target == nil {
		return
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatal(err)
	}
}

func openBrowserWindow(t *testing.T, client *http.Client, baseURL string) schema.WindowID {
	t.Helper()
	var opened struct {
		WindowID schema.WindowID `json:"window_id"`
	}
	readJSON(t, writeJSON(t, client, http.MethodPost, baseURL+"/api/windows", nil), &opened)
	if opened.WindowID == "" {
		t.Fatalf("expected a window id")
	}
	return opened.WindowID
}

func windowURL(baseURL string, windowID schema.WindowID) string {
	return baseURL + "/api/windows/" + string(windowID)
}

func tabTitles(view schema.WindowView) []string {
	out := make([]string, 0, len(view.Tabs))
	for _, tab := range view.Tabs {
		out = append(out, tab.Title)
	}
	return out
}

func readSSEvent(ctx context.Context, reader *bufio.Reader) (httpapi.StreamEvent, error) {
	type result struct {
		event httpapi.StreamEvent
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		var data strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				ch <- result{err: err}
				return
			}
			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				if data.Len() == 0 {
					continue
				}
				var event httpapi.StreamEvent
				err := json.Unmarshal([]byte(data.String()), &event)
				ch <- result{event: event, err: err}
				return
			}
			if value, ok := strings.CutPrefix(line, "data: "); ok {
				data.WriteString(value)
			}
		}
	}()
	select {
	case <-ctx.Done():
		return httpapi.StreamEvent{}, ctx.Err()
	case res := <-ch:
		return res.event, res.err
	}
}

func waitForStreamEvent(t *testing.T, reader *bufio.Reader, timeout time.Duration, match func(httpapi.StreamEvent) bool) httpapi.StreamEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		event, err := readSSEvent(ctx, reader)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("timeout waiting for stream event")
			}
			t.Fatalf("stream read failed: %v", err)
		}
		if match(event) {
			return event
		}
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func expectOutput(t *testing.T, buffer *lockedBuffer, substr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(buffer.String(), substr) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %q in output: %q", substr, buffer.String())
}

func newTestSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer
}

func writeAuthorizedKeys(t *testing.T, signers ...ssh.Signer) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("# test keys\n")
	for _, signer := range signers {
		buf.Write(ssh.MarshalAuthorizedKey(signer.PublicKey()))
	}
	path := filepath.Join(t.TempDir(), "authorized_keys")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func sshDial(addr string, auth ...ssh.AuthMethod) (*ssh.Client, error) {
	if len(auth) == 0 {
		auth = []ssh.AuthMethod{ssh.Password("")}
	}
	return ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "tester",
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

func startSSHSession(t *testing.T, client *ssh.Client) (io.WriteCloser, *lockedBuffer, *ssh.Session) {
	t.Helper()
	session, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	if err := session.RequestPty("xterm", 120, 30, ssh.TerminalModes{}); err != nil {
		t.Fatal(err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := session.Shell(); err != nil {
		t.Fatal(err)
	}
	output := &lockedBuffer{}
	go func() {
		_, _ = io.Copy(output, stdout)
	}()
	return stdin, output, session
}

func waitForSessionClose(t *testing.T, session *ssh.Session) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()
	select {
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not close")
	case <-done:
	}
}

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

func sshPublicKeys(signer ssh.Signer) ssh.AuthMethod {
	return ssh.PublicKeys(signer)
}
