package bravia

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"ldpm/pkg/logx"
)

func testSimpleIP(t *testing.T, port int) *SimpleIP {
	t.Helper()
	return NewSimpleIP(Config{
		Timeout:      2 * time.Second,
		MaxAttempts:  3,
		RetryBase:    time.Millisecond,
		SimpleIPPort: port,
	}, logx.Nop())
}

func TestBuildFrameLayout(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cmd  string
		val  string
		want string
	}{
		{name: "enquiry", cmd: cmdEnquiry, val: "", want: "*SEPOWR################\n"},
		{name: "set on", cmd: cmdControl, val: powerOnValue, want: "*SCPOWR0000000000000001\n"},
		{name: "set off", cmd: cmdControl, val: powerOffValue, want: "*SCPOWR0000000000000000\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := buildFrame(tt.cmd, codePower, tt.val)
			if len(got) != frameLen {
				t.Fatalf("frame length = %d, want %d", len(got), frameLen)
			}
			if string(got) != tt.want {
				t.Fatalf("frame = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()
	for _, val := range []string{"", powerOnValue, powerOffValue} {
		frame := buildFrame(cmdControl, codePower, val)
		cmd, code, value, err := parseFrame(frame)
		if err != nil {
			t.Fatalf("parseFrame(%q) error: %v", frame, err)
		}
		if cmd != cmdControl || code != codePower || value != val {
			t.Fatalf("round trip = (%q,%q,%q), want (%q,%q,%q)",
				cmd, code, value, cmdControl, codePower, val)
		}
	}
}

func TestParseFrameTooShort(t *testing.T) {
	t.Parallel()
	if _, _, _, err := parseFrame([]byte("*SA\n")); err == nil {
		t.Fatal("expected error for short reply")
	}
}

// fakePanel answers every connection with a fixed reply.
func fakePanel(t *testing.T, reply string, conns *atomic.Int64) (addr string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if conns != nil {
				conns.Add(1)
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 1024)
				if _, err := c.Read(buf); err != nil {
					return
				}
				_, _ = c.Write([]byte(reply))
			}(conn)
		}
	}()

	tcp := ln.Addr().(*net.TCPAddr)
	return tcp.IP.String(), tcp.Port
}

func TestSimpleIPPowerStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		reply string
		want  PowerState
	}{
		{name: "on", reply: "*SAPOWR0000000000000001\n", want: StateActive},
		{name: "off", reply: "*SAPOWR0000000000000000\n", want: StateStandby},
		{name: "bad digit", reply: "*SAPOWR000000000000000F\n", want: StateError},
		{name: "wrong code", reply: "*SAVOLU0000000000000001\n", want: StateError},
		{name: "short", reply: "*SA\n", want: StateError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			host, port := fakePanel(t, tt.reply, nil)
			tr := testSimpleIP(t, port)
			if got := tr.PowerStatus(context.Background(), host, ""); got != tt.want {
				t.Fatalf("PowerStatus = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimpleIPSetPower(t *testing.T) {
	t.Parallel()
	host, port := fakePanel(t, "*SAPOWR0000000000000000\n", nil)
	tr := testSimpleIP(t, port)
	if !tr.SetPower(context.Background(), host, "", true) {
		t.Fatal("SetPower = false, want true")
	}
}

func TestSimpleIPRetriesExactlyThreeTimes(t *testing.T) {
	t.Parallel()
	var conns atomic.Int64
	host, port := fakePanel(t, "garbage\n", &conns)
	tr := testSimpleIP(t, port)

	if got := tr.PowerStatus(context.Background(), host, ""); got != StateError {
		t.Fatalf("PowerStatus = %v, want %v", got, StateError)
	}
	if n := conns.Load(); n != 3 {
		t.Fatalf("connections = %d, want 3", n)
	}
}

func TestSimpleIPDialFailure(t *testing.T) {
	t.Parallel()
	// Grab a port and close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	tr := testSimpleIP(t, port)
	if got := tr.PowerStatus(context.Background(), "127.0.0.1", ""); got != StateError {
		t.Fatalf("PowerStatus = %v, want %v", got, StateError)
	}
	if tr.SetPower(context.Background(), "127.0.0.1", "", false) {
		t.Fatal("SetPower = true, want false")
	}
}

func TestSimpleIPHostPortPassthrough(t *testing.T) {
	t.Parallel()
	host, port := fakePanel(t, "*SAPOWR0000000000000001\n", nil)
	// Address already carries a port: the configured default must not apply.
	tr := testSimpleIP(t, 1)
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if got := tr.PowerStatus(context.Background(), addr, ""); got != StateActive {
		t.Fatalf("PowerStatus = %v, want %v", got, StateActive)
	}
}
