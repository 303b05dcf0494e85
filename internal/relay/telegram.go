package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// telegramResponse is the envelope every Bot API method returns.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// TelegramError reports a rejected sendPhoto call.
type TelegramError struct {
	StatusCode  int
	Description string
}

func (e *TelegramError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram sendPhoto failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("telegram sendPhoto failed with status %d: %s", e.StatusCode, e.Description)
}

type telegramClient struct {
	baseURL string
	token   string
	chatID  string
	http    *http.Client
}

func (c *telegramClient) endpoint() string {
	return c.baseURL + "/bot" + c.token + "/sendPhoto"
}

// sendPhoto uploads payload as photo.jpg to the configured chat.
func (c *telegramClient) sendPhoto(ctx context.Context, payload []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", c.chatID); err != nil {
		return fmt.Errorf("write chat_id: %w", err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="photo"; filename="photo.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return fmt.Errorf("write photo part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), &body)
	if err != nil {
		return fmt.Errorf("build sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL contains the bot token; keep it out of logs.
		return fmt.Errorf("sendPhoto request failed: %w", redactToken(err, c.token))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var envelope telegramResponse
	_ = json.Unmarshal(raw, &envelope)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.OK {
		return &TelegramError{StatusCode: resp.StatusCode, Description: envelope.Description}
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redactToken(err error, token string) error {
	if token == "" {
		return err
	}
	msg := string(bytes.ReplaceAll([]byte(err.Error()), []byte(token), []byte("<redacted>")))
	return &redactedError{msg: msg, err: err}
}
