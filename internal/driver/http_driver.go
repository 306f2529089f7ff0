package driver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"whatsapp-dispatch-go/internal/config"
)

// HTTPDriver talks to the automation sidecar over its local HTTP API.
// Sends use a long-timeout client because the web client may take tens of
// seconds to render a chat; probes use a short-timeout client so status
// checks stay cheap.
type HTTPDriver struct {
	baseURL     string
	sendClient  *http.Client
	probeClient *http.Client
}

// NewHTTPDriver creates a driver for the sidecar at cfg.BaseURL.
func NewHTTPDriver(cfg config.DriverConfig) *HTTPDriver {
	return &HTTPDriver{
		baseURL:     cfg.BaseURL,
		sendClient:  &http.Client{Timeout: cfg.SendTimeout},
		probeClient: &http.Client{Timeout: cfg.ProbeTimeout},
	}
}

type sendRequest struct {
	Recipient  string `json:"phone_number"`
	Body       string `json:"message"`
	Attachment string `json:"image_path,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Send posts one message to the sidecar. A non-2xx response or transport
// error is returned as-is; the caller records it as the message's ERROR
// detail. Send is never retried here: the channel punishes duplicate
// traffic, and retry policy belongs to the queue.
func (d *HTTPDriver) Send(ctx context.Context, recipient, body, attachment string) error {
	payload, err := json.Marshal(sendRequest{
		Recipient:  recipient,
		Body:       body,
		Attachment: attachment,
	})
	if err != nil {
		return fmt.Errorf("failed to encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.sendClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivery channel unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Detail != "" {
		return fmt.Errorf("delivery failed (status %d): %s", resp.StatusCode, er.Detail)
	}
	return fmt.Errorf("delivery failed (status %d): %s", resp.StatusCode, string(raw))
}

type probeResponse struct {
	Visible bool `json:"visible"`
}

// ProbeAuthenticated checks the authenticated-session marker.
func (d *HTTPDriver) ProbeAuthenticated(ctx context.Context) (bool, error) {
	return d.probe(ctx, "/probe/session")
}

// ProbeChallenge checks the authentication-challenge marker.
func (d *HTTPDriver) ProbeChallenge(ctx context.Context) (bool, error) {
	return d.probe(ctx, "/probe/challenge")
}

// probe performs a read-only marker check. Transport errors are retried
// briefly with constant backoff; probes are non-mutating so retrying here is
// safe, unlike sends.
func (d *HTTPDriver) probe(ctx context.Context, path string) (bool, error) {
	var visible bool

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := d.probeClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusServiceUnavailable {
			return backoff.Permanent(ErrNotInitialized)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("probe %s failed with status %d", path, resp.StatusCode))
		}

		var pr probeResponse
		if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode probe response: %w", err))
		}
		visible = pr.Visible
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 2), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			// Sidecar not reachable: channel not initialized rather than
			// a hard probe failure.
			return false, fmt.Errorf("%w: %v", ErrNotInitialized, err)
		}
		return false, err
	}
	return visible, nil
}

type challengeResponse struct {
	QRBase64 string `json:"qr_base64"`
}

// ChallengeArtifact fetches the current challenge screenshot from the
// sidecar and returns the raw image bytes.
func (d *HTTPDriver) ChallengeArtifact(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/qr", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build challenge request: %w", err)
	}

	resp, err := d.sendClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotInitialized, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoChallenge
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("challenge fetch failed with status %d", resp.StatusCode)
	}

	var cr challengeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("failed to decode challenge response: %w", err)
	}
	if cr.QRBase64 == "" {
		return nil, ErrNoChallenge
	}

	img, err := base64.StdEncoding.DecodeString(cr.QRBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode challenge image: %w", err)
	}
	return img, nil
}
