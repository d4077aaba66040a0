package mail_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conference-payments/internal/config"
	"conference-payments/internal/logger"
	"conference-payments/internal/mail"
	"conference-payments/internal/models"
	rediswrap "conference-payments/internal/redis"
)

// memCache is an in-process TokenCache standing in for Redis.
type memCache struct {
	tok *rediswrap.CachedToken
}

func (c *memCache) GetMailToken(ctx context.Context) (rediswrap.CachedToken, bool, error) {
	if c.tok == nil || time.Now().After(c.tok.ExpiresAt) {
		return rediswrap.CachedToken{}, false, nil
	}
	return *c.tok, true, nil
}

func (c *memCache) SetMailToken(ctx context.Context, tok rediswrap.CachedToken) error {
	c.tok = &tok
	return nil
}

func (c *memCache) InvalidateMailToken(ctx context.Context) error {
	c.tok = nil
	return nil
}

type providerState struct {
	tokenCalls int
	sendCalls  int
	rejectTok  string
}

func newProvider(t *testing.T, state *providerState) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		state.tokenCalls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-" + time.Now().Format("150405.000000000"),
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1/send", func(w http.ResponseWriter, r *http.Request) {
		state.sendCalls++
		if r.Header.Get("Authorization") == "Bearer "+state.rejectTok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func newMailer(baseURL string, cache mail.TokenCache) *mail.Mailer {
	return mail.NewMailer(config.MailConfig{
		BaseURL:      baseURL,
		ClientID:     "id",
		ClientSecret: "secret",
		SenderEmail:  "noreply@example.com",
		ReceiptTmpl:  "receipt",
	}, cache, logger.NewLogger())
}

func TestSendCachesToken(t *testing.T) {
	state := &providerState{}
	srv := newProvider(t, state)
	defer srv.Close()

	m := newMailer(srv.URL, &memCache{})

	require.NoError(t, m.Send(context.Background(), "receipt", "a@example.com", nil))
	require.NoError(t, m.Send(context.Background(), "receipt", "b@example.com", nil))

	assert.Equal(t, 1, state.tokenCalls)
	assert.Equal(t, 2, state.sendCalls)
}

func TestSendRetriesOnRejectedToken(t *testing.T) {
	state := &providerState{}
	srv := newProvider(t, state)
	defer srv.Close()

	cache := &memCache{tok: &rediswrap.CachedToken{
		Token:     "stale-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	state.rejectTok = "stale-token"

	m := newMailer(srv.URL, cache)

	require.NoError(t, m.Send(context.Background(), "receipt", "a@example.com", nil))

	// Stale token was rejected, invalidated, and replaced by a fresh one.
	assert.Equal(t, 1, state.tokenCalls)
	assert.Equal(t, 2, state.sendCalls)
	require.NotNil(t, cache.tok)
	assert.NotEqual(t, "stale-token", cache.tok.Token)
}

func TestSendReceiptRequiresOrder(t *testing.T) {
	m := newMailer("http://unused", &memCache{})
	err := m.SendReceipt(context.Background(), &models.PaymentEvent{OrderID: "ord_x"})
	assert.ErrorIs(t, err, mail.ErrSendFailed)
}
