package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Клиент vision-модели для распознавания накладных: один вызов
// OpenAI-совместимого chat-completions эндпоинта с картинкой,
// без ретраев и батчинга.

const systemPrompt = `You are an expert at extracting structured data from packing slips, invoices, and shipping documents.

Extract line items (parts/products) from the provided image. For each item, identify:
1. item_id: the part number, SKU, or item identifier (prefer alphanumeric codes like "PART-12345")
2. qty: the quantity being shipped/received
3. description: a brief description of the item if visible
4. confidence: your confidence in the extraction ("high", "medium", "low")

Also extract metadata if visible: vendor, po_number, ship_date.

Guidelines:
- If an item ID is unclear, make your best guess and mark confidence as "low"
- Quantities are positive integers; if unknown, default to 1 with confidence "low"
- Ignore header rows, totals, and non-item rows
- If the image is not a packing slip or is unreadable, return empty items with a note explaining why

Return ONLY valid JSON matching:
{"items":[{"item_id":"string","qty":1,"description":"string or null","confidence":"high|medium|low"}],"vendor":"string or null","po_number":"string or null","ship_date":"string or null","notes":"string or null"}`

type LineItem struct {
	ItemID      string  `json:"item_id"`
	Qty         int     `json:"qty"`
	Description *string `json:"description,omitempty"`
	Confidence  string  `json:"confidence"`
}

type SlipResult struct {
	Items    []LineItem `json:"items"`
	Vendor   *string    `json:"vendor,omitempty"`
	PONumber *string    `json:"po_number,omitempty"`
	ShipDate *string    `json:"ship_date,omitempty"`
	Notes    *string    `json:"notes,omitempty"`
}

type Client struct {
	log      *slog.Logger
	endpoint string
	token    string
	model    string
	httpc    *http.Client
}

func NewClient(log *slog.Logger, endpoint, token, model string) *Client {
	return &Client{
		log:      log,
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		model:    model,
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ParseImage отправляет накладную модели и разбирает ответ.
// Транспортная ошибка возвращается как ошибка; невалидный ответ модели —
// как пустой результат с пояснением в notes (мягкий отказ, как и задумано).
func (c *Client) ParseImage(ctx context.Context, image []byte, mediaType string) (SlipResult, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(image))

	body, err := json.Marshal(chatRequest{
		Model:     c.model,
		MaxTokens: 2048,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []map[string]any{
				{"type": "text", "text": "Extract all line items from this packing slip."},
				{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
			}},
		},
	})
	if err != nil {
		return SlipResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return SlipResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return SlipResult{}, fmt.Errorf("vision request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SlipResult{}, fmt.Errorf("vision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return SlipResult{}, fmt.Errorf("vision endpoint returned %d: %s", resp.StatusCode, raw)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil || len(cr.Choices) == 0 {
		return softFailure("unexpected completion payload"), nil
	}

	var out SlipResult
	if err := json.Unmarshal([]byte(stripFences(cr.Choices[0].Message.Content)), &out); err != nil {
		c.log.Warn("vision returned non-JSON content", "err", err)
		return softFailure("model response was not valid JSON"), nil
	}
	if out.Items == nil {
		out.Items = []LineItem{}
	}

	c.log.Info("packing slip parsed", "item_count", len(out.Items))
	return out, nil
}

func softFailure(reason string) SlipResult {
	return SlipResult{Items: []LineItem{}, Notes: &reason}
}

// stripFences срезает markdown-ограждение вокруг JSON, если модель
// завернула ответ в ```json ... ```.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
	} else {
		return s
	}
	if j := strings.Index(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}
