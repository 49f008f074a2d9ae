package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/raaihank/piiwatch/internal/privacy"
)

// MethodStatistical identifies matches produced by the statistical NLP service
const MethodStatistical = "statistical"

// StatisticalClient calls an HTTP service wrapping a statistical NER pipeline.
// The service answers {"ents":[{"label","text","start","end"}]} with
// character (not byte) offsets.
type StatisticalClient struct {
	endpoint string
	client   *http.Client
}

type entsRequest struct {
	Text string `json:"text"`
}

type entsResponse struct {
	Ents []struct {
		Label string `json:"label"`
		Text  string `json:"text"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	} `json:"ents"`
}

// NewStatisticalClient creates the client
func NewStatisticalClient(endpoint string, timeout time.Duration) *StatisticalClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StatisticalClient{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

// StatisticalProfile returns the closed label table of the statistical provider
func StatisticalProfile() privacy.Profile {
	return privacy.Profile{
		Method:       MethodStatistical,
		ChunkChars:   100000,
		DropUnmapped: true,
		Labels: map[string]privacy.LabelRule{
			"PERSON": {Type: "PERSON_NAME", Severity: privacy.SeverityHigh, Confidence: 0.75},
			"ORG":    {Type: "ORGANIZATION", Severity: privacy.SeverityMedium, Confidence: 0.75},
			"GPE":    {Type: "LOCATION", Severity: privacy.SeverityMedium, Confidence: 0.65},
			"LOC":    {Type: "LOCATION", Severity: privacy.SeverityMedium, Confidence: 0.65},
			"DATE":   {Type: "DATE_ENTITY", Severity: privacy.SeverityMedium, Confidence: 0.65},
			"NORP":   {Type: "NATIONALITY", Severity: privacy.SeverityMedium, Confidence: 0.65},
		},
	}
}

func (c *StatisticalClient) Profile() privacy.Profile { return StatisticalProfile() }

func (c *StatisticalClient) Ready() bool { return c.endpoint != "" }

// Recognize posts the chunk and converts character offsets to byte offsets
func (c *StatisticalClient) Recognize(ctx context.Context, chunk string) ([]privacy.Span, error) {
	body, err := json.Marshal(entsRequest{Text: chunk})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("statistical service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("statistical service status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var parsed entsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	byteAt := runeOffsets(chunk)
	spans := make([]privacy.Span, 0, len(parsed.Ents))
	for _, e := range parsed.Ents {
		span := privacy.Span{Label: e.Label, Text: e.Text, Score: 1, Start: -1, End: -1}
		if e.Start >= 0 && e.End > e.Start && e.End < len(byteAt) {
			span.Start, span.End = byteAt[e.Start], byteAt[e.End]
		}
		spans = append(spans, span)
	}
	return spans, nil
}

// runeOffsets maps a character index to its byte offset; the last entry is len(s)
func runeOffsets(s string) []int {
	out := make([]int, 0, utf8.RuneCountInString(s)+1)
	for i := range s {
		out = append(out, i)
	}
	return append(out, len(s))
}
