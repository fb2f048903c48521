// Package telegram is a thin Bot API client covering the three operations
// the bot needs: send, edit and callback acknowledgement. Sends degrade
// through an explicit state machine (styled, unstyled, raw-split) when the
// API rejects them for markup or length.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rmux/axion-bot/telemetry"
)

const (
	// DefaultAPIBase is the Telegram Bot API root.
	DefaultAPIBase = "https://api.telegram.org"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// ParseModeMarkdown enables Markdown styling on a send.
	ParseModeMarkdown = "Markdown"
)

// SendOptions carries the optional parameters of a send or edit.
type SendOptions struct {
	ParseMode             string
	DisableWebPagePreview bool
	ReplyMarkup           *tgbotapi.InlineKeyboardMarkup
}

// APIError is a rejection returned by the Bot API.
type APIError struct {
	Method      string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s rejected: %s", e.Method, e.Description)
}

// ParseFailure reports whether the rejection is for unparsable style markup.
func (e *APIError) ParseFailure() bool {
	return strings.Contains(e.Description, "can't parse entities")
}

// TooLong reports whether the rejection is for an over-length message.
func (e *APIError) TooLong() bool {
	return strings.Contains(e.Description, "message is too long")
}

// Client talks to the Telegram Bot API for one bot token.
type Client struct {
	base   string
	token  string
	client *http.Client
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIBase sets the Bot API root URL.
func WithAPIBase(base string) ClientOption {
	return func(c *Client) {
		c.base = strings.TrimSuffix(base, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Bot API client.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		base:   DefaultAPIBase,
		token:  token,
		logger: slog.Default(),
		client: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseUpdate decodes a webhook update envelope.
func ParseUpdate(data []byte) (*tgbotapi.Update, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("decoding update: %w", err)
	}
	return &update, nil
}

// SendMessage delivers text to a chat. Text over the message limit is
// split on line boundaries first; each chunk is sent in order, and each
// send degrades independently if the API rejects it.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) error {
	chunks := SplitMessage(text, MessageLimit)
	if len(chunks) > 1 {
		c.logger.Debug("message split into chunks", "chunks", len(chunks), "chat_id", chatID)
	}
	for _, chunk := range chunks {
		if err := c.sendChunk(ctx, chatID, chunk, opts); err != nil {
			return err
		}
	}
	return nil
}

// sendChunk walks the degrade chain: styled, then unstyled on a markup
// rejection, then raw length windows on a too-long rejection. Any other
// rejection is returned to the caller.
func (c *Client) sendChunk(ctx context.Context, chatID int64, text string, opts SendOptions) error {
	err := c.callSend(ctx, chatID, text, opts)
	if err == nil {
		return nil
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return err
	}

	if apiErr.ParseFailure() && opts.ParseMode != "" {
		telemetry.RecordSendRetry("markup")
		c.logger.Warn("send rejected for style markup, retrying unstyled",
			"chat_id", chatID,
			"error", apiErr.Description,
		)
		plain := opts
		plain.ParseMode = ""
		err = c.callSend(ctx, chatID, text, plain)
		if err == nil {
			return nil
		}
		if apiErr, ok = asAPIError(err); !ok {
			return err
		}
	}

	if apiErr.TooLong() {
		telemetry.RecordSendRetry("too_long")
		c.logger.Warn("send rejected as too long, splitting by raw length",
			"chat_id", chatID,
			"length", len(text),
		)
		for off := 0; off < len(text); off += MessageLimit {
			end := off + MessageLimit
			if end > len(text) {
				end = len(text)
			}
			window := SendOptions{DisableWebPagePreview: true}
			if err := c.callSend(ctx, chatID, text[off:end], window); err != nil {
				return err
			}
		}
		return nil
	}

	return apiErr
}

// EditMessage replaces the text and keyboard of an existing message. A
// markup rejection is retried once unstyled.
func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string, opts SendOptions) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.Itoa(messageID))
	params.Set("text", text)
	applyOptions(params, opts)

	err := c.call(ctx, "editMessageText", params)
	if err == nil {
		return nil
	}
	if apiErr, ok := asAPIError(err); ok && apiErr.ParseFailure() && opts.ParseMode != "" {
		telemetry.RecordSendRetry("markup")
		c.logger.Warn("edit rejected for style markup, retrying unstyled",
			"chat_id", chatID,
			"message_id", messageID,
		)
		params.Del("parse_mode")
		return c.call(ctx, "editMessageText", params)
	}
	return err
}

// AnswerCallback acknowledges a callback query.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	params := url.Values{}
	params.Set("callback_query_id", callbackID)
	return c.call(ctx, "answerCallbackQuery", params)
}

func (c *Client) callSend(ctx context.Context, chatID int64, text string, opts SendOptions) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	applyOptions(params, opts)
	return c.call(ctx, "sendMessage", params)
}

func applyOptions(params url.Values, opts SendOptions) {
	if opts.ParseMode != "" {
		params.Set("parse_mode", opts.ParseMode)
	}
	if opts.DisableWebPagePreview {
		params.Set("disable_web_page_preview", "true")
	}
	if opts.ReplyMarkup != nil {
		markup, err := json.Marshal(opts.ReplyMarkup)
		if err == nil {
			params.Set("reply_markup", string(markup))
		}
	}
}

// call posts one Bot API method. The API reports rejections in the
// response body regardless of HTTP status, so the body is decoded first
// and the status only consulted when it is unreadable.
func (c *Client) call(ctx context.Context, method string, params url.Values) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.base, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s returned %d", method, resp.StatusCode)
		}
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !apiResp.OK {
		return &APIError{Method: method, Description: apiResp.Description}
	}
	return nil
}

func asAPIError(err error) (*APIError, bool) {
	apiErr, ok := err.(*APIError)
	return apiErr, ok
}
