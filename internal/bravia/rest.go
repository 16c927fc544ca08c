package bravia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ldpm/pkg/logx"
)

// REST speaks the authenticated JSON-RPC-style protocol: POST to
// http://{addr}/sony/system with the pre-shared key in the X-Auth-PSK
// header. Primary transport when a PSK is configured.
type REST struct {
	timeout     time.Duration
	maxAttempts int
	retryBase   time.Duration
	log         logx.Logger
}

func NewREST(cfg Config, log logx.Logger) *REST {
	cfg = cfg.withDefaults()
	return &REST{
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		log:         log,
	}
}

type rpcRequest struct {
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	Version string `json:"version"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func (t *REST) PowerStatus(ctx context.Context, addr, psk string) PowerState {
	req := rpcRequest{Method: "getPowerStatus", Params: []any{}, Version: "1.0", ID: 1}

	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		st, err := func() (PowerState, error) {
			resp, err := t.call(ctx, addr, psk, req)
			if err != nil {
				return StateError, err
			}
			var result []struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(resp.Result, &result); err != nil {
				return StateError, fmt.Errorf("decode result: %w", err)
			}
			if len(result) == 0 {
				return StateError, fmt.Errorf("empty result")
			}
			switch strings.ToLower(result[0].Status) {
			case "active":
				return StateActive, nil
			case "standby":
				return StateStandby, nil
			default:
				return StateError, fmt.Errorf("unexpected status %q", result[0].Status)
			}
		}()
		if err == nil {
			return st
		}
		t.log.Warn("rest power status failed",
			logx.String("addr", addr), logx.Int("attempt", attempt+1), logx.Err(err))
		if attempt < t.maxAttempts-1 && !sleepBackoff(ctx, attempt, t.retryBase) {
			break
		}
	}
	return StateError
}

func (t *REST) SetPower(ctx context.Context, addr, psk string, on bool) bool {
	req := rpcRequest{
		Method:  "setPowerStatus",
		Params:  []any{map[string]bool{"status": on}},
		Version: "1.0",
		ID:      1,
	}

	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		// Any response carrying a result key (even an empty array) is success.
		_, err := t.call(ctx, addr, psk, req)
		if err == nil {
			t.log.Debug("rest set power ok", logx.String("addr", addr), logx.Bool("on", on))
			return true
		}
		t.log.Warn("rest set power failed",
			logx.String("addr", addr), logx.Int("attempt", attempt+1), logx.Err(err))
		if attempt < t.maxAttempts-1 && !sleepBackoff(ctx, attempt, t.retryBase) {
			break
		}
	}
	return false
}

// call performs one HTTP exchange on a fresh client and returns the decoded
// body iff it carries a result key. An error field or a missing result is a
// protocol error, treated the same as a transport failure.
func (t *REST) call(ctx context.Context, addr, psk string, body rpcRequest) (*rpcResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := addr
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	url += "/sony/system"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-PSK", psk)

	client := &http.Client{Timeout: t.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("device error: %s", string(out.Error))
	}
	if out.Result == nil {
		return nil, fmt.Errorf("missing result")
	}
	return &out, nil
}
