package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"shutterbox/internal/config"
)

const maxErrorBody = 2048

// Sink accepts one payload per call. A nil error means the sink acknowledged it.
type Sink interface {
	Deliver(ctx context.Context, payload []byte) error
}

// Client posts payloads to the configured sink URL.
type Client struct {
	endpoint     string
	fieldName    string
	fileName     string
	userAgent    string
	probeAddress string
	client       *http.Client
}

// NewClient builds a sink client from the [sink] and [connectivity] sections.
func NewClient(cfg *config.Config) *Client {
	timeout := cfg.SinkTimeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint:     cfg.Sink.URL,
		fieldName:    cfg.Sink.FieldName,
		fileName:     cfg.Sink.FileName,
		userAgent:    cfg.Sink.UserAgent,
		probeAddress: cfg.Connectivity.ProbeAddress,
		client:       &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the sink URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Deliver makes exactly one POST attempt.
func (c *Client) Deliver(ctx context.Context, payload []byte) error {
	if c == nil || c.client == nil {
		return &Failure{Err: errors.New("delivery client not configured")}
	}

	body, contentType, err := c.encode(payload)
	if err != nil {
		return &Failure{Err: fmt.Errorf("encode multipart body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return &Failure{Err: fmt.Errorf("build sink request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Failure{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Failure{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) encode(payload []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	buf.Grow(len(payload) + 512)
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(c.fieldName), escapeQuotes(c.fileName)))
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(payload); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

// Probe checks that the sink host accepts TCP connections. It never decides
// delivery success; the connectivity watcher uses it to notice recovery.
func (c *Client) Probe(ctx context.Context) error {
	if c == nil || c.probeAddress == "" {
		return errors.New("no probe address configured")
	}
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", c.probeAddress)
	if err != nil {
		return fmt.Errorf("probe %s: %w", c.probeAddress, err)
	}
	return conn.Close()
}
