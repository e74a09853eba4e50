package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisRelayValidatesURL(t *testing.T) {
	_, err := NewRedisRelay(context.Background(), "", "chat:events")
	require.Error(t, err)

	_, err = NewRedisRelay(context.Background(), "http://not-redis", "chat:events")
	require.Error(t, err)
}

func TestEnvelopeKeepsPayloadVerbatim(t *testing.T) {
	payload := []byte(`{"event":"typing","data":{"chat_id":7}}`)
	body, err := json.Marshal(envelope{ChatID: 7, Exclude: "conn-a", Payload: payload})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, 7, env.ChatID)
	assert.Equal(t, "conn-a", env.Exclude)
	assert.JSONEq(t, string(payload), string(env.Payload))
}

func TestPublishSurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := NewRedisRelayWithClient(client, "chat:events")
	t.Cleanup(func() { _ = r.Close() })

	err := r.Publish(context.Background(), 7, []byte(`{}`), "")
	assert.Error(t, err)
}

type recordingSink struct {
	mu        sync.Mutex
	delivered []envelope
	evicted   [][2]int
}

func (s *recordingSink) Deliver(chatID int, payload []byte, excludeConnID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, envelope{ChatID: chatID, Exclude: excludeConnID, Payload: payload})
	return 1
}

func (s *recordingSink) Evict(chatID, userID int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evicted = append(s.evicted, [2]int{chatID, userID})
	return nil
}

func TestApplyRoutesByKind(t *testing.T) {
	sink := &recordingSink{}

	apply(sink, envelope{ChatID: 7, Exclude: "conn-a", Payload: []byte(`{"event":"typing"}`)})
	apply(sink, envelope{Kind: kindEvict, ChatID: 7, UserID: 2})
	apply(sink, envelope{Kind: "bogus", ChatID: 7})

	require.Len(t, sink.delivered, 1)
	assert.Equal(t, "conn-a", sink.delivered[0].Exclude)
	assert.Equal(t, [][2]int{{7, 2}}, sink.evicted)
}

func TestEvictEnvelopeShape(t *testing.T) {
	body, err := json.Marshal(envelope{Kind: kindEvict, ChatID: 7, UserID: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"evict","chat_id":7,"user_id":2}`, string(body))
}
