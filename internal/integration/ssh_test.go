package integration_test

import (
	"bufio"
	"fmt"
	"net/http"
	"slices"
	"testing"
	"time"

	"pkt.systems/tabstrip/httpapi"
	"pkt.systems/tabstrip/schema"
)

func TestSSHSessionOwnsAWindow(t *testing.T) {
	requireLong(t)
	ts := newTestServer(t)
	addr := ts.startSSH(t, "")

	client, err := sshDial(addr)
	if err != nil {
		t.Fatalf("dial ssh: %v", err)
	}
	defer client.Close()
	stdin, output, session := startSSHSession(t, client)

	if _, err := fmt.Fprint(stdin, "/new text-editor notes.md\r"); err != nil {
		t.Fatal(err)
	}
	expectOutput(t, output, "opened notes.md", 5*time.Second)

	windows := ts.registry.List()
	if len(windows) != 1 || windows[0].Tabs != 1 {
		t.Fatalf("expected one ssh window with one tab, got %+v", windows)
	}

	if _, err := fmt.Fprint(stdin, "/quit\r"); err != nil {
		t.Fatal(err)
	}
	waitForSessionClose(t, session)

	deadline := time.Now().Add(5 * time.Second)
	for len(ts.registry.List()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected ssh window to close with the session, still open: %+v", ts.registry.List())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSSHRequiresPty(t *testing.T) {
	requireLong(t)
	ts := newTestServer(t)
	addr := ts.startSSH(t, "")

	client, err := sshDial(addr)
	if err != nil {
		t.Fatalf("dial ssh: %v", err)
	}
	defer client.Close()
	session, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()
	out, err := session.CombinedOutput("")
	if err == nil {
		t.Fatalf("expected a non-zero exit without a pty")
	}
	if string(out) != "pty required\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(ts.registry.List()) != 0 {
		t.Fatalf("expected no window for a rejected session")
	}
}

func TestSSHSendReachesBrowserWindow(t *testing.T) {
	requireLong(t)
	ts := newTestServer(t)
	server := ts.startHTTP(t)
	browser := newBrowserClient(t)
	target := openBrowserWindow(t, browser, server.URL)

	streamResp, err := browser.Get(windowURL(server.URL, target) + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = streamResp.Body.Close() })
	reader := bufio.NewReader(streamResp.Body)
	waitForStreamEvent(t, reader, 5*time.Second, func(ev httpapi.StreamEvent) bool { return ev.Type == "snapshot" })

	addr := ts.startSSH(t, "")
	client, err := sshDial(addr)
	if err != nil {
		t.Fatalf("dial ssh: %v", err)
	}
	defer client.Close()
	stdin, output, _ := startSSHSession(t, client)

	if _, err := fmt.Fprint(stdin, "/new diagram-viewer flow.svg\r"); err != nil {
		t.Fatal(err)
	}
	expectOutput(t, output, "opened flow.svg", 5*time.Second)
	if _, err := fmt.Fprintf(stdin, "/send %s\r", string(target)[:8]); err != nil {
		t.Fatal(err)
	}
	expectOutput(t, output, "sent flow.svg to "+string(target), 5*time.Second)

	event := waitForStreamEvent(t, reader, 5*time.Second, func(ev httpapi.StreamEvent) bool {
		return ev.Type == "state" && ev.View != nil && len(ev.View.Tabs) == 1
	})
	if got := tabTitles(*event.View); !slices.Equal(got, []string{"flow.svg"}) {
		t.Fatalf("unexpected browser tabs %v", got)
	}
	if event.View.Tabs[0].Type != schema.TabTypeDiagramViewer {
		t.Fatalf("unexpected tab type %q", event.View.Tabs[0].Type)
	}

	var sshWindow schema.WindowSummary
	for _, summary := range ts.registry.List() {
		if summary.ID != target {
			sshWindow = summary
		}
	}
	if sshWindow.ID == "" || sshWindow.Tabs != 0 {
		t.Fatalf("expected the ssh window to give up the moved tab, got %+v", sshWindow)
	}

	var view schema.WindowView
	readJSON(t, writeJSON(t, browser, http.MethodGet, windowURL(server.URL, target)+"/tabs", nil), &view)
	if view.ActiveTabID != view.Tabs[0].ID {
		t.Fatalf("expected received tab to become active, got %+v", view)
	}
}

func TestSSHAuthorizedKeys(t *testing.T) {
	requireLong(t)
	ts := newTestServer(t)
	allowed := newTestSigner(t)
	other := newTestSigner(t)
	addr := ts.startSSH(t, writeAuthorizedKeys(t, allowed))

	if _, err := sshDial(addr); err == nil {
		t.Fatalf("expected auth failure without a key")
	}
	if _, err := sshDial(addr, sshPublicKeys(other)); err == nil {
		t.Fatalf("expected auth failure with an unknown key")
	}
	client, err := sshDial(addr, sshPublicKeys(allowed))
	if err != nil {
		t.Fatalf("expected authorized key to be accepted: %v", err)
	}
	_ = client.Close()
}
