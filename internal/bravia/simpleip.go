package bravia

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"ldpm/pkg/logx"
)

// Simple IP Control: 24-byte ASCII frames over a raw TCP connection,
// no authentication. One connection per request, exactly one reply.
//
// Frame layout: 3-char command prefix + 4-char feature code + value,
// right-padded with '#' to 23 bytes, terminated by '\n'.
const (
	simpleIPDefaultPort = 20060

	cmdControl = "*SC"
	cmdEnquiry = "*SE"
	cmdAnswer  = "*SA"

	codePower = "POWR"

	powerOnValue  = "0000000000000001"
	powerOffValue = "0000000000000000"

	frameLen = 24
)

type SimpleIP struct {
	port        int
	timeout     time.Duration
	maxAttempts int
	retryBase   time.Duration
	log         logx.Logger
}

func NewSimpleIP(cfg Config, log logx.Logger) *SimpleIP {
	cfg = cfg.withDefaults()
	return &SimpleIP{
		port:        cfg.SimpleIPPort,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		log:         log,
	}
}

// buildFrame assembles one 24-byte request frame.
func buildFrame(cmd, code, value string) []byte {
	s := cmd + code + value
	for len(s) < frameLen-1 {
		s += "#"
	}
	return []byte(s + "\n")
}

// parseFrame splits a reply into command prefix, feature code and value
// with the '#' padding stripped.
func parseFrame(data []byte) (cmd, code, value string, err error) {
	s := strings.TrimSpace(string(data))
	if len(s) < 8 {
		return "", "", "", fmt.Errorf("reply too short: %q", s)
	}
	return s[:3], s[3:7], strings.TrimRight(s[7:], "#"), nil
}

func (t *SimpleIP) PowerStatus(ctx context.Context, addr, _ string) PowerState {
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		value, err := t.roundTrip(ctx, addr, buildFrame(cmdEnquiry, codePower, ""))
		if err == nil {
			switch {
			case strings.HasSuffix(value, "1"):
				return StateActive
			case strings.HasSuffix(value, "0"):
				return StateStandby
			default:
				err = fmt.Errorf("unexpected power value %q", value)
			}
		}
		t.log.Warn("simple ip power status failed",
			logx.String("addr", addr), logx.Int("attempt", attempt+1), logx.Err(err))
		if attempt < t.maxAttempts-1 && !sleepBackoff(ctx, attempt, t.retryBase) {
			break
		}
	}
	return StateError
}

func (t *SimpleIP) SetPower(ctx context.Context, addr, _ string, on bool) bool {
	value := powerOffValue
	if on {
		value = powerOnValue
	}
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		_, err := t.roundTrip(ctx, addr, buildFrame(cmdControl, codePower, value))
		if err == nil {
			t.log.Debug("simple ip set power ok", logx.String("addr", addr), logx.Bool("on", on))
			return true
		}
		t.log.Warn("simple ip set power failed",
			logx.String("addr", addr), logx.Int("attempt", attempt+1), logx.Err(err))
		if attempt < t.maxAttempts-1 && !sleepBackoff(ctx, attempt, t.retryBase) {
			break
		}
	}
	return false
}

// roundTrip performs one request/reply exchange on a fresh connection and
// validates the answer frame. A single read is sufficient: the panel sends
// exactly one reply per request.
func (t *SimpleIP) roundTrip(ctx context.Context, addr string, frame []byte) (string, error) {
	host := addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		host = net.JoinHostPort(addr, strconv.Itoa(t.port))
	}

	d := net.Dialer{Timeout: t.timeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return "", fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(t.timeout))

	if _, err := conn.Write(frame); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}

	cmd, code, value, err := parseFrame(buf[:n])
	if err != nil {
		return "", err
	}
	if cmd != cmdAnswer || code != codePower {
		return "", fmt.Errorf("unexpected reply %s%s", cmd, code)
	}
	return value, nil
}
