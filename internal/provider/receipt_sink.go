package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/unclebandit/crm-pipeline/internal/model"
	"github.com/unclebandit/crm-pipeline/internal/queue"
)

// HTTPReceiptSink POSTs receipts to the producer's delivery-receipt endpoint,
// the way a real vendor calls back.
type HTTPReceiptSink struct {
	URL    string
	Client *http.Client
}

func NewHTTPReceiptSink(url string) *HTTPReceiptSink {
	return &HTTPReceiptSink{URL: url, Client: &http.Client{}}
}

func (h *HTTPReceiptSink) Deliver(ctx context.Context, r model.Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post receipt: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post receipt: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// BusReceiptSink publishes receipts straight onto delivery:receipt.
type BusReceiptSink struct {
	Bus queue.Bus
}

func (b *BusReceiptSink) Deliver(ctx context.Context, r model.Receipt) error {
	return queue.PublishJSON(ctx, b.Bus, model.TopicDeliveryReceipt, r)
}
