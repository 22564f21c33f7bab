package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:test-token"

type sentMessage struct {
	chatID string
	text   string
}

type fakeBotAPI struct {
	mu       sync.Mutex
	sent     []sentMessage
	failSend bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/bot" + testToken + "/getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Ads","username":"ads_bot"}}`)
	case "/bot" + testToken + "/sendMessage":
		_ = r.ParseForm()
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failSend {
			fmt.Fprint(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot is not a member of the channel chat"}`)
			return
		}
		f.sent = append(f.sent, sentMessage{chatID: r.PostForm.Get("chat_id"), text: r.PostForm.Get("text")})
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":-100123,"type":"channel"}}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func (f *fakeBotAPI) setFailSend(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSend = fail
}

func (f *fakeBotAPI) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func newTestBot(t *testing.T) (*Bot, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	bot, err := NewBot(testToken, srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	return bot, fake
}

func TestSendToChannel(t *testing.T) {
	bot, fake := newTestBot(t)

	require.NoError(t, bot.SendToChannel(context.Background(), "spring_sales", "Hello"))
	require.NoError(t, bot.SendToChannel(context.Background(), "@already_prefixed", "Hi"))

	sent := fake.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, sentMessage{chatID: "@spring_sales", text: "Hello"}, sent[0])
	assert.Equal(t, "@already_prefixed", sent[1].chatID)
}

func TestSendToUser_TruncatesLongText(t *testing.T) {
	bot, fake := newTestBot(t)

	long := strings.Repeat("я", MaxMessageLength+50)
	require.NoError(t, bot.SendToUser(context.Background(), 1001, long))

	sent := fake.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "1001", sent[0].chatID)
	assert.Equal(t, MaxMessageLength, utf8.RuneCountInString(sent[0].text))
}

func TestSend_Failures(t *testing.T) {
	bot, fake := newTestBot(t)

	fake.setFailSend(true)
	assert.Error(t, bot.SendToUser(context.Background(), 1001, "hi"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake.setFailSend(false)
	assert.ErrorIs(t, bot.SendToChannel(ctx, "c", "hi"), context.Canceled)
	assert.Empty(t, fake.messages())
}

func TestNewBot_RejectsBadToken(t *testing.T) {
	srv := httptest.NewServer(&fakeBotAPI{})
	defer srv.Close()

	_, err := NewBot("wrong:token", srv.URL+"/bot%s/%s")
	assert.Error(t, err)
}
