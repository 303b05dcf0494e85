// Package relay implements the sink that sits between the daemon and the
// Telegram Bot API.
//
// It accepts POST /send with a multipart "photo" part, the same shape the
// delivery client produces, and forwards the image to sendPhoto for the
// configured chat. Any non-2xx answer makes the daemon keep the item queued,
// so the relay reports messaging failures as 502 rather than swallowing them.
package relay
