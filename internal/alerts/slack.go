package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Field is one labelled value shown under an alert.
type Field struct {
	Key   string
	Value string
}

// Notifier sends operator alerts.
type Notifier interface {
	Notify(ctx context.Context, text string, fields ...Field)
}

// Slack posts alerts to an incoming webhook. With no URL it does nothing.
type Slack struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewSlack(url string, client *http.Client, logger *slog.Logger) *Slack {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Slack{url: url, client: client, logger: logger}
}

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type block struct {
	Type   string       `json:"type"`
	Text   *textObject  `json:"text,omitempty"`
	Fields []textObject `json:"fields,omitempty"`
}

type message struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks"`
}

// Notify never returns an error; delivery failures are only logged.
func (s *Slack) Notify(ctx context.Context, text string, fields ...Field) {
	if s.url == "" {
		return
	}
	if err := s.send(ctx, buildMessage(text, fields)); err != nil {
		s.logger.Error("slack notification failed", "error", err)
	}
}

func buildMessage(text string, fields []Field) message {
	msg := message{
		Text:   text,
		Blocks: []block{{Type: "section", Text: &textObject{Type: "mrkdwn", Text: text}}},
	}
	if len(fields) > 0 {
		section := block{Type: "section"}
		for _, f := range fields {
			section.Fields = append(section.Fields, textObject{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*%s:*\n%s", f.Key, f.Value),
			})
		}
		msg.Blocks = append(msg.Blocks, section)
	}
	return msg
}

func (s *Slack) send(ctx context.Context, msg message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
