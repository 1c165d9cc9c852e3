package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Webhook posts each event as JSON to a configured URL. Delivery is detached
// from the caller: failures are logged after bounded retries and dropped.
type Webhook struct {
	URL        string
	HTTPClient *http.Client
	Attempts   int
	Timeout    time.Duration
	LogPrefix  string
}

func NewWebhook(url string, httpClient *http.Client, logPrefix string) *Webhook {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Webhook{
		URL:        strings.TrimSpace(url),
		HTTPClient: httpClient,
		Attempts:   3,
		Timeout:    30 * time.Second,
		LogPrefix:  logPrefix,
	}
}

func (w *Webhook) Broadcast(sessionID, eventType string, payload any) {
	if w == nil || w.URL == "" {
		return
	}
	body, err := json.Marshal(Event{
		SessionID: sessionID,
		Type:      eventType,
		Payload:   payload,
		At:        time.Now(),
	})
	if err != nil {
		log.Printf("%s webhook marshal failed: type=%s err=%v", w.LogPrefix, eventType, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.Timeout)
		defer cancel()
		if err := postJSONWithRetry(ctx, w.HTTPClient, w.URL, body, w.Attempts); err != nil {
			log.Printf("%s webhook delivery failed: type=%s err=%v", w.LogPrefix, eventType, err)
		}
	}()
}

func postJSONWithRetry(ctx context.Context, httpClient *http.Client, url string, body []byte, attempts int) error {
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := postJSON(ctx, httpClient, url, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func postJSON(ctx context.Context, httpClient *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return errors.New(msg)
	}
	return nil
}
