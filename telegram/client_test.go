package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type apiCall struct {
	Method    string
	Text      string
	ParseMode string
}

// fakeAPI is a scripted Bot API endpoint. The respond hook decides per
// call whether to accept or reject.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	respond func(call apiCall) (ok bool, description string)
}

func (f *fakeAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		call := apiCall{
			Method:    r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:],
			Text:      r.PostForm.Get("text"),
			ParseMode: r.PostForm.Get("parse_mode"),
		}

		f.mu.Lock()
		f.calls = append(f.calls, call)
		respond := f.respond
		f.mu.Unlock()

		ok, description := true, ""
		if respond != nil {
			ok, description = respond(call)
		}
		w.Header().Set("Content-Type", "application/json")
		if ok {
			fmt.Fprint(w, `{"ok": true, "result": {}}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"ok": false, "description": %q}`, description)
	})
}

func (f *fakeAPI) recorded() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]apiCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)
	return NewClient("test-token",
		WithAPIBase(server.URL),
		WithHTTPClient(server.Client()),
	)
}

func TestSendMessage(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	err := c.SendMessage(context.Background(), 42, "hello", SendOptions{ParseMode: ParseModeMarkdown})
	require.NoError(t, err)

	calls := api.recorded()
	require.Len(t, calls, 1)
	require.Equal(t, "sendMessage", calls[0].Method)
	require.Equal(t, "hello", calls[0].Text)
	require.Equal(t, ParseModeMarkdown, calls[0].ParseMode)
}

func TestSendMessageSplitsLongText(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	line := strings.Repeat("x", 99)
	text := strings.Join(repeatSlice(line, 90), "\n")
	require.Greater(t, len(text), MessageLimit)

	err := c.SendMessage(context.Background(), 42, text, SendOptions{})
	require.NoError(t, err)

	calls := api.recorded()
	require.Greater(t, len(calls), 1)
	var rejoined []string
	for _, call := range calls {
		require.LessOrEqual(t, len(call.Text), MessageLimit)
		rejoined = append(rejoined, call.Text)
	}
	require.Equal(t, text, strings.Join(rejoined, "\n"))
}

func TestSendMessageRetriesUnstyledOnParseFailure(t *testing.T) {
	api := &fakeAPI{
		respond: func(call apiCall) (bool, string) {
			if call.ParseMode != "" {
				return false, "Bad Request: can't parse entities: unclosed entity"
			}
			return true, ""
		},
	}
	c := newTestClient(t, api)

	err := c.SendMessage(context.Background(), 42, "*broken markup", SendOptions{ParseMode: ParseModeMarkdown})
	require.NoError(t, err)

	calls := api.recorded()
	require.Len(t, calls, 2)
	require.Equal(t, ParseModeMarkdown, calls[0].ParseMode)
	require.Empty(t, calls[1].ParseMode)
	require.Equal(t, calls[0].Text, calls[1].Text)
}

func TestSendMessageSplitsRawOnTooLong(t *testing.T) {
	api := &fakeAPI{
		respond: func(call apiCall) (bool, string) {
			if len(call.Text) > MessageLimit {
				return false, "Bad Request: message is too long"
			}
			return true, ""
		},
	}
	c := newTestClient(t, api)

	// A single line with no break points survives SplitMessage intact and
	// must fall back to raw length windows.
	text := strings.Repeat("y", MessageLimit*2+100)
	err := c.SendMessage(context.Background(), 42, text, SendOptions{})
	require.NoError(t, err)

	calls := api.recorded()
	require.Len(t, calls, 4) // one rejected oversize send plus three windows

	var rebuilt strings.Builder
	for _, call := range calls[1:] {
		require.LessOrEqual(t, len(call.Text), MessageLimit)
		rebuilt.WriteString(call.Text)
	}
	require.Equal(t, text, rebuilt.String())
}

func TestSendMessageOtherRejection(t *testing.T) {
	api := &fakeAPI{
		respond: func(call apiCall) (bool, string) {
			return false, "Forbidden: bot was blocked by the user"
		},
	}
	c := newTestClient(t, api)

	err := c.SendMessage(context.Background(), 42, "hello", SendOptions{})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	require.Contains(t, apiErr.Description, "blocked")
	require.Len(t, api.recorded(), 1)
}

func TestEditMessageRetriesUnstyled(t *testing.T) {
	api := &fakeAPI{
		respond: func(call apiCall) (bool, string) {
			if call.ParseMode != "" {
				return false, "Bad Request: can't parse entities"
			}
			return true, ""
		},
	}
	c := newTestClient(t, api)

	err := c.EditMessage(context.Background(), 42, 7, "*broken", SendOptions{ParseMode: ParseModeMarkdown})
	require.NoError(t, err)

	calls := api.recorded()
	require.Len(t, calls, 2)
	require.Equal(t, "editMessageText", calls[0].Method)
	require.Empty(t, calls[1].ParseMode)
}

func TestAnswerCallback(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	err := c.AnswerCallback(context.Background(), "cb-123")
	require.NoError(t, err)

	calls := api.recorded()
	require.Len(t, calls, 1)
	require.Equal(t, "answerCallbackQuery", calls[0].Method)
}

func TestAPIErrorClassification(t *testing.T) {
	parse := &APIError{Method: "sendMessage", Description: "Bad Request: can't parse entities: x"}
	require.True(t, parse.ParseFailure())
	require.False(t, parse.TooLong())

	long := &APIError{Method: "sendMessage", Description: "Bad Request: message is too long"}
	require.True(t, long.TooLong())
	require.False(t, long.ParseFailure())
}

func TestParseUpdate(t *testing.T) {
	update, err := ParseUpdate([]byte(`{"update_id": 1, "message": {"message_id": 2, "text": "/start", "chat": {"id": 42}}}`))
	require.NoError(t, err)
	require.NotNil(t, update.Message)
	require.Equal(t, "/start", update.Message.Text)
	require.Equal(t, int64(42), update.Message.Chat.ID)

	_, err = ParseUpdate([]byte(`not json`))
	require.Error(t, err)
}

func repeatSlice(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
