// Package notify delivers job outcome messages to webhook and Discord
// targets. It subscribes to the event bus and reacts to terminal state
// transitions; delivery failures are logged and never affect the job.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alchemist-av/alchemist/internal/events"
	"github.com/alchemist-av/alchemist/internal/metrics"
	"github.com/alchemist-av/alchemist/internal/models"
	"github.com/alchemist-av/alchemist/internal/repository"
	"github.com/alchemist-av/alchemist/pkg/format"
	"github.com/alchemist-av/alchemist/pkg/httpclient"
)

// sendTimeout bounds one delivery attempt.
const sendTimeout = 10 * time.Second

// Discord embed colors.
const (
	colorSuccess = 0x00FF00
	colorFailure = 0xFF0000
	colorNeutral = 0x808080
)

type webhookPayload struct {
	Message   string `json:"message"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Notifier consumes terminal job events and fans them out to the enabled
// notification targets.
type Notifier struct {
	mu sync.Mutex

	targets  repository.NotificationRepository
	settings repository.SettingsRepository
	jobs     repository.JobRepository
	stats    repository.StatsRepository

	bus    *events.Bus
	client *httpclient.Client
	logger *slog.Logger

	// Running state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sub    *events.Subscriber
}

// New creates a notifier. Configure it with WithLogger or WithClient before
// Start.
func New(targets repository.NotificationRepository, settings repository.SettingsRepository, jobs repository.JobRepository, stats repository.StatsRepository, bus *events.Bus) *Notifier {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = sendTimeout
	return &Notifier{
		targets:  targets,
		settings: settings,
		jobs:     jobs,
		stats:    stats,
		bus:      bus,
		client:   httpclient.New(cfg),
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (n *Notifier) WithLogger(logger *slog.Logger) *Notifier {
	n.logger = logger.With("component", "notify")
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = sendTimeout
	cfg.Logger = n.logger
	n.client = httpclient.New(cfg)
	return n
}

// WithClient replaces the delivery client.
func (n *Notifier) WithClient(client *httpclient.Client) *Notifier {
	n.client = client
	return n
}

// Start subscribes to the bus and launches the consume loop.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ctx != nil {
		return fmt.Errorf("notifier already started")
	}
	n.ctx, n.cancel = context.WithCancel(ctx)
	n.sub = n.bus.Subscribe()

	n.wg.Add(1)
	go n.consume(n.ctx, n.sub)

	n.logger.Info("notifier started")
	return nil
}

// Stop unsubscribes and waits for in-flight deliveries to abort.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if n.ctx == nil {
		n.mu.Unlock()
		return
	}
	n.cancel()
	sub := n.sub
	n.mu.Unlock()

	n.bus.Unsubscribe(sub.ID)
	n.wg.Wait()

	n.mu.Lock()
	n.ctx = nil
	n.cancel = nil
	n.sub = nil
	n.mu.Unlock()

	n.logger.Info("notifier stopped")
}

func (n *Notifier) consume(ctx context.Context, sub *events.Subscriber) {
	defer n.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			n.handle(ctx, ev)
		}
	}
}

// handle dispatches one event. Only completed and failed transitions notify;
// skipped and cancelled jobs are routine outcomes.
func (n *Notifier) handle(ctx context.Context, ev events.Event) {
	if ev.Type != events.TypeState {
		return
	}
	failed := ev.State == models.JobStateFailed
	if !failed && ev.State != models.JobStateCompleted {
		return
	}

	st, err := n.settings.Get(ctx)
	if err != nil {
		n.logger.Warn("loading settings for notification", "error", err)
		return
	}
	if failed && !st.NotifyOnFailure {
		return
	}
	if !failed && !st.NotifyOnComplete {
		return
	}

	targets, err := n.targets.ListEnabled(ctx)
	if err != nil {
		n.logger.Warn("listing notification targets", "error", err)
		return
	}
	matched := targets[:0]
	for _, t := range targets {
		if (failed && t.OnFailure) || (!failed && t.OnComplete) {
			matched = append(matched, t)
		}
	}
	if len(matched) == 0 {
		return
	}

	job, err := n.jobs.Get(ctx, ev.JobID)
	if err != nil || job == nil {
		n.logger.Warn("loading job for notification", "job_id", ev.JobID, "error", err)
		return
	}

	var title, msg string
	var color int
	if failed {
		title, color = "Job Failed", colorFailure
		msg = failureMessage(job)
	} else {
		title, color = "Job Completed", colorSuccess
		stat, err := n.stats.ForJob(ctx, ev.JobID)
		if err != nil {
			n.logger.Warn("loading stats for notification", "job_id", ev.JobID, "error", err)
		}
		msg = completionMessage(job, stat)
	}

	for _, t := range matched {
		if err := n.send(ctx, t, title, msg, color); err != nil {
			metrics.NotificationSent(string(t.Kind), false)
			n.logger.Warn("notification delivery failed",
				"target_id", t.ID,
				"kind", t.Kind,
				"job_id", job.ID,
				"error", err,
			)
			continue
		}
		metrics.NotificationSent(string(t.Kind), true)
		n.logger.Debug("notification delivered", "target_id", t.ID, "kind", t.Kind, "job_id", job.ID)
	}
}

// Test fires a test message at one target, regardless of its event flags.
// It works without Start so the API can verify targets before saving them.
func (n *Notifier) Test(ctx context.Context, target *models.NotificationTarget) error {
	return n.send(ctx, target, "Test Notification", "Test notification from alchemist", colorNeutral)
}

func (n *Notifier) send(ctx context.Context, t *models.NotificationTarget, title, message string, color int) error {
	switch t.Kind {
	case models.NotificationDiscord:
		return n.post(ctx, t.URL, discordPayload{
			Username: "Alchemist",
			Embeds:   []discordEmbed{{Title: title, Description: message, Color: color}},
		})
	default:
		return n.post(ctx, t.URL, webhookPayload{
			Message:   message,
			Source:    "alchemist",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (n *Notifier) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func completionMessage(job *models.Job, stat *models.EncodeStat) string {
	lines := []string{
		fmt.Sprintf("Job #%d completed", job.ID),
		job.InputPath,
	}
	if stat != nil {
		lines = append(lines, format.SavingsLine(stat.InputSizeBytes, stat.OutputSizeBytes, stat.EncodeSeconds))
	}
	return strings.Join(lines, "\n")
}

func failureMessage(job *models.Job) string {
	msg := fmt.Sprintf("Job #%d failed\n%s", job.ID, job.InputPath)
	if job.ErrorDetail != nil && *job.ErrorDetail != "" {
		msg += "\nError: " + *job.ErrorDetail
	}
	return msg
}
