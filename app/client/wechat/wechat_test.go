package wechat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"xiaoz/app/config"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanSender(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"张三", "张三"},
		{"  张三  ", "张三"},
		{"同学群 (3)", "同学群"},
		{"同学群（12）", "同学群"},
		{"同学群( 5 )", "同学群"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanSender(tt.in), "input %q", tt.in)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Bridge.BaseURL = server.URL
	cfg.Bridge.BotName = "小z"

	di := do.New()
	do.ProvideValue(di, cfg)

	client, err := NewClient(di)
	require.NoError(t, err)

	return client
}

func TestNicknameFetchedFromSidecar(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/self", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"nickname": "小z二号"})
	})

	client := newTestClient(t, mux)

	assert.Equal(t, "小z二号", client.Nickname())
}

func TestNicknameFallsBackToConfiguredName(t *testing.T) {
	// no /api/self route, the sidecar answers 404
	client := newTestClient(t, http.NewServeMux())

	assert.Equal(t, "小z", client.Nickname())
}

func TestFetchNewMessages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": map[string]any{
				"同学群 (3)": []map[string]string{
					{"text": "@小z 你好", "type": "text"},
				},
				"张三": []map[string]string{
					{"text": "在吗", "type": "text"},
					{"text": "@小z 提醒功能", "type": "text"},
				},
			},
		})
	})

	client := newTestClient(t, mux)

	messages, err := client.FetchNewMessages(context.Background())
	require.NoError(t, err)

	require.Len(t, messages, 2)
	require.Len(t, messages["同学群"], 1)
	assert.Equal(t, "@小z 你好", messages["同学群"][0].Text)
	require.Len(t, messages["张三"], 2)
	assert.Equal(t, "在吗", messages["张三"][0].Text)
}

func TestFetchNewMessagesSidecarError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages/new", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "wechat window not found", http.StatusInternalServerError)
	})

	client := newTestClient(t, mux)

	_, err := client.FetchNewMessages(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSendText(t *testing.T) {
	var got struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/message/send", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, mux)

	err := client.SendText(context.Background(), "张三", "你好")
	require.NoError(t, err)
	assert.Equal(t, "张三", got.To)
	assert.Equal(t, "你好", got.Text)
}

func TestSendTextSidecarError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/message/send", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "send failed", http.StatusBadGateway)
	})

	client := newTestClient(t, mux)

	err := client.SendText(context.Background(), "张三", "你好")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
