package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/securepool/pincheck/internal/config"
	"github.com/securepool/pincheck/internal/runner"
)

const deliveryTimeout = 10 * time.Second

// Notifier posts run summaries to the configured webhooks.
type Notifier struct {
	webhooks  []config.WebhookConfig
	onSuccess bool
	client    *http.Client
}

// New returns a Notifier for cfg.
func New(cfg config.NotifyConfig) *Notifier {
	return &Notifier{
		webhooks:  cfg.Webhooks,
		onSuccess: cfg.OnSuccess,
		client:    &http.Client{Timeout: deliveryTimeout},
	}
}

// Summary is the payload delivered to http webhooks.
type Summary struct {
	RunID    string    `json:"run_id"`
	Target   string    `json:"target"`
	Passed   bool      `json:"passed"`
	Finished time.Time `json:"finished_at"`
	Checks   []Outcome `json:"checks"`
}

// Outcome is one check as it appears in a Summary.
type Outcome struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Pin      string `json:"pin,omitempty"`
}

// Send delivers rep to every webhook with a resolved URL. It does nothing
// for passing runs unless on_success is set. Delivery errors are logged and
// never returned.
func (n *Notifier) Send(ctx context.Context, rep *runner.Report) {
	if rep.Passed() && !n.onSuccess {
		return
	}
	sum := summarize(rep)

	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(ctx, url, sum)
		case "teams":
			err = n.sendTeams(ctx, url, sum)
		case "http":
			err = n.sendHTTP(ctx, url, sum)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"run_id", rep.RunID,
				"err", err,
			)
		} else {
			slog.Debug("notify: webhook delivered",
				"type", wh.Type,
				"run_id", rep.RunID,
				"passed", sum.Passed,
			)
		}
	}
}

func summarize(rep *runner.Report) Summary {
	sum := Summary{
		RunID:    rep.RunID,
		Target:   rep.Target,
		Passed:   rep.Passed(),
		Finished: rep.FinishedAt.UTC(),
	}
	for _, res := range rep.Results {
		sum.Checks = append(sum.Checks, Outcome{
			Name:     res.Name,
			Type:     res.Type,
			Status:   string(res.Status),
			Optional: res.Optional,
			Detail:   res.Detail,
			Pin:      res.Pin,
		})
	}
	return sum
}

// headline is the one-line text used by chat webhooks.
func headline(sum Summary) string {
	if sum.Passed {
		return fmt.Sprintf("Certificate pinning check passed for %s", sum.Target)
	}
	var failed []string
	for _, c := range sum.Checks {
		if !c.Optional && c.Status != "pass" {
			failed = append(failed, fmt.Sprintf("%s (%s)", c.Name, c.Status))
		}
	}
	return fmt.Sprintf("Certificate pinning check FAILED for %s: %s", sum.Target, strings.Join(failed, ", "))
}

func (n *Notifier) sendSlack(ctx context.Context, url string, sum Summary) error {
	prefix := "[OK]"
	if !sum.Passed {
		prefix = "[CRITICAL]"
	}
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s", prefix, headline(sum)),
	})
	return n.post(ctx, url, body)
}

func (n *Notifier) sendTeams(ctx context.Context, url string, sum Summary) error {
	color := "00D4FF"
	if !sum.Passed {
		color = "FF4F6A"
	}
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": color,
		"summary":    "pincheck " + sum.Target,
		"title":      fmt.Sprintf("pincheck: %s", sum.Target),
		"text":       headline(sum),
	}
	body, _ := json.Marshal(payload)
	return n.post(ctx, url, body)
}

func (n *Notifier) sendHTTP(ctx context.Context, url string, sum Summary) error {
	body, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return n.post(ctx, url, body)
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
