package protocol_test

import (
	"strings"
	"testing"

	"github.com/momentics/chatwire/protocol"
)

func TestAcceptKeyKnownVector(t *testing.T) {
	// RFC6455 section 1.3 example.
	got := protocol.AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("AcceptKey = %q, want %q", got, want)
	}
}

func TestAcceptKeyTrimsClientKey(t *testing.T) {
	if protocol.AcceptKey(" dGhlIHNhbXBsZSBub25jZQ== ") != protocol.AcceptKey("dGhlIHNhbXBsZSBub25jZQ==") {
		t.Error("surrounding whitespace changed the accept token")
	}
}

const upgradeRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: localhost:8080\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: keep-alive, Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"\r\n"

func TestParseUpgrade(t *testing.T) {
	key, err := protocol.ParseUpgrade([]byte(upgradeRequest))
	if err != nil {
		t.Fatal(err)
	}
	if key != "dGhlIHNhbXBsZSBub25jZQ==" {
		t.Errorf("key = %q", key)
	}
}

func TestParseUpgradeRejectsPlainRequest(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"
	if _, err := protocol.ParseUpgrade([]byte(raw)); err == nil {
		t.Error("plain HTTP request accepted as upgrade")
	}
}

func TestUpgradeResponse(t *testing.T) {
	resp := string(protocol.UpgradeResponse("dGhlIHNhbXBsZSBub25jZQ=="))
	for _, want := range []string{
		"HTTP/1.1 101 Switching Protocols\r\n",
		"Upgrade: websocket\r\n",
		"Connection: Upgrade\r\n",
		"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n",
	} {
		if !strings.Contains(resp, want) {
			t.Errorf("response missing %q", want)
		}
	}
	if !strings.HasSuffix(resp, "\r\n\r\n") {
		t.Error("response not terminated by blank line")
	}
}
