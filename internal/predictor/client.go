// Package predictor talks to the external budget/timeline prediction
// service.  The model itself lives elsewhere; this is only the wire
// contract.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// Client posts an event summary to <base>/suggest.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the predictor at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type suggestRequest struct {
	EventType  string    `json:"event_type"`
	Venue      string    `json:"venue"`
	Department string    `json:"department"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
}

type suggestResponse struct {
	BudgetCents int64 `json:"budget_cents"`
	Timeline    []struct {
		Start       time.Time `json:"start"`
		End         time.Time `json:"end"`
		Label       string    `json:"label"`
		Description string    `json:"description"`
	} `json:"timeline"`
	Equipment []struct {
		Item     string `json:"item"`
		Quantity int    `json:"quantity"`
	} `json:"equipment"`
}

// Suggest implements service.Predictor.
func (c *Client) Suggest(ctx context.Context, ev model.Event) (model.Suggestion, error) {
	body, err := json.Marshal(suggestRequest{
		EventType:  ev.Type,
		Venue:      ev.Venue,
		Department: ev.Department,
		StartAt:    ev.StartAt,
		EndAt:      ev.EndAt,
	})
	if err != nil {
		return model.Suggestion{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/suggest", bytes.NewReader(body))
	if err != nil {
		return model.Suggestion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return model.Suggestion{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Suggestion{}, fmt.Errorf("predictor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out suggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Suggestion{}, fmt.Errorf("decode predictor response: %w", err)
	}
	sug := model.Suggestion{BudgetCents: out.BudgetCents}
	for _, p := range out.Timeline {
		sug.Timeline = append(sug.Timeline, model.TimelinePhase{StartAt: p.Start, EndAt: p.End, Label: p.Label, Description: p.Description})
	}
	for _, e := range out.Equipment {
		sug.Equipment = append(sug.Equipment, model.SuggestedEquipment{ItemName: e.Item, Quantity: e.Quantity})
	}
	return sug, nil
}
