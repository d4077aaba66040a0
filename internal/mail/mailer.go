// Package mail sends transactional email through an HTTP template API. The
// provider's bearer token is cached in an injected token cache and refreshed
// on expiry or a 401, never held in package-level state.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"conference-payments/internal/config"
	"conference-payments/internal/logger"
	"conference-payments/internal/models"
	rediswrap "conference-payments/internal/redis"
)

var ErrSendFailed = errors.New("mail send failed")

// TokenCache is the shared store for the provider bearer token.
type TokenCache interface {
	GetMailToken(ctx context.Context) (rediswrap.CachedToken, bool, error)
	SetMailToken(ctx context.Context, tok rediswrap.CachedToken) error
	InvalidateMailToken(ctx context.Context) error
}

type Mailer struct {
	cfg    config.MailConfig
	cache  TokenCache
	client *http.Client
	log    *logger.Logger
}

func NewMailer(cfg config.MailConfig, cache TokenCache, log *logger.Logger) *Mailer {
	return &Mailer{
		cfg:    cfg,
		cache:  cache,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log,
	}
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (m *Mailer) token(ctx context.Context) (string, error) {
	if tok, ok, err := m.cache.GetMailToken(ctx); err == nil && ok {
		return tok.Token, nil
	}

	body, _ := json.Marshal(map[string]string{
		"client_id":     m.cfg.ClientID,
		"client_secret": m.cfg.ClientSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to obtain mail token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mail token endpoint returned %d", resp.StatusCode)
	}

	var ar authResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("failed to decode mail token response: %w", err)
	}

	cached := rediswrap.CachedToken{
		Token: ar.AccessToken,
		// Refresh a minute early so in-flight sends don't race the expiry.
		ExpiresAt: time.Now().Add(time.Duration(ar.ExpiresIn)*time.Second - time.Minute),
	}
	if err := m.cache.SetMailToken(ctx, cached); err != nil {
		m.log.Warn("MAIL", fmt.Sprintf("Failed to cache mail token: %v", err))
	}
	return ar.AccessToken, nil
}

type sendRequest struct {
	TemplateID string            `json:"template_id"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Variables  map[string]string `json:"variables"`
}

// Send delivers one templated message, retrying once with a fresh token when
// the provider rejects the cached one.
func (m *Mailer) Send(ctx context.Context, templateID, to string, variables map[string]string) error {
	for attempt := 0; attempt < 2; attempt++ {
		tok, err := m.token(ctx)
		if err != nil {
			return err
		}

		body, _ := json.Marshal(sendRequest{
			TemplateID: templateID,
			From:       m.cfg.SenderEmail,
			To:         to,
			Variables:  variables,
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/v1/send", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)

		resp, err := m.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			if err := m.cache.InvalidateMailToken(ctx); err != nil {
				m.log.Warn("MAIL", fmt.Sprintf("Failed to invalidate mail token: %v", err))
			}
			continue
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("%w: provider returned %d", ErrSendFailed, resp.StatusCode)
		}
		return nil
	}
	return fmt.Errorf("%w: token rejected twice", ErrSendFailed)
}

// SendReceipt sends the receipt email for a reconciled order.
func (m *Mailer) SendReceipt(ctx context.Context, event *models.PaymentEvent) error {
	if event.Order == nil || event.Payment == nil {
		return fmt.Errorf("%w: event missing order or payment", ErrSendFailed)
	}

	order := event.Order
	vars := map[string]string{
		"customer_name": order.CustomerName,
		"order_id":      order.OrderID,
		"subtotal":      order.Subtotal.StringFixed(2),
		"fee":           order.Fee.StringFixed(2),
		"total":         order.Total.StringFixed(2),
		"currency":      order.Currency,
		"channel":       event.Payment.Channel,
	}

	m.log.Info("MAIL", fmt.Sprintf("Sending receipt for order %s to %s", order.OrderID, order.CustomerEmail))
	return m.Send(ctx, m.cfg.ReceiptTmpl, order.CustomerEmail, vars)
}
