// Package discord delivers events to a Discord channel through a webhook.
//
// The webhook sender is a bus listener: it evaluates the event's
// notification rule first and returns immediately, with no network call,
// when the rule says not to notify. Otherwise the event is rendered as a
// single embed (color keyed by priority, one field per data entry) and
// POSTed to the webhook URL.
//
// Delivery policy:
//
//   - Rate-limit responses (429) are always retried after the delay the
//     provider specifies. They do not consume a regular retry slot, but
//     total attempts are capped at 4x MaxRetries so sustained rate
//     limiting cannot retry forever.
//   - Transport and server failures are retried with exponential backoff
//     (2^attempt backoff units) up to MaxRetries attempts.
//   - Any other rejection from the provider, and internal failures such
//     as payload marshalling, abandon the delivery immediately: these are
//     not assumed transient.
//
// Webhooks need no bot token, so only discordgo's wire types are used;
// the HTTP exchange stays here where the retry policy can see it.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/alertbus/alertbus"
	"github.com/alertbus/alertbus/ratelimit"
)

// rateLimitBudgetFactor bounds total attempts under sustained rate
// limiting: a 429 retries without consuming a regular retry slot, but
// never more than maxRetries*rateLimitBudgetFactor times overall.
const rateLimitBudgetFactor = 4

// Embed colors per priority.
const (
	colorGray   = 0x808080
	colorBlue   = 0x3498db
	colorOrange = 0xf39c12
	colorRed    = 0xe74c3c
)

// Webhook is a delivery channel that sends event notifications to a
// Discord webhook. It implements alertbus.Listener.
type Webhook struct {
	alertbus.Subscription

	url         string
	name        string
	username    string
	maxRetries  int
	backoffBase time.Duration
	client      *http.Client
	limiter     ratelimit.Limiter
	breaker     *alertbus.CircuitBreaker
	logger      *slog.Logger

	sent        metric.Int64Counter
	failed      metric.Int64Counter
	rateLimited metric.Int64Counter
}

// New creates a webhook sender for the given webhook URL.
// Returns an error only for a missing or unparsable URL; configuration
// problems beyond that cannot occur, so an unconfigured channel is simply
// never constructed rather than being an error state for the bus.
func New(webhookURL string, opts ...Option) (*Webhook, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("discord: webhook URL is required")
	}
	u, err := url.Parse(webhookURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("discord: invalid webhook URL %q", webhookURL)
	}

	o := newOptions(opts...)

	meter := otel.Meter("alertbus.discord")
	sent, _ := meter.Int64Counter("discord.notifications.sent",
		metric.WithDescription("Total number of notifications delivered"))
	failed, _ := meter.Int64Counter("discord.notifications.failed",
		metric.WithDescription("Total number of notifications that exhausted delivery"))
	rateLimited, _ := meter.Int64Counter("discord.notifications.rate_limited",
		metric.WithDescription("Total number of rate-limited delivery attempts"))

	return &Webhook{
		Subscription: alertbus.Subscription{Types: o.types, Filters: o.filters},
		url:          webhookURL,
		name:         o.name,
		username:     o.username,
		maxRetries:   o.maxRetries,
		backoffBase:  o.backoffBase,
		client:       o.client,
		limiter:      o.limiter,
		breaker:      o.breaker,
		logger:       o.logger.With("component", "discord>"+o.name),
		sent:         sent,
		failed:       failed,
		rateLimited:  rateLimited,
	}, nil
}

// Name returns the listener name.
func (w *Webhook) Name() string {
	return w.name
}

// CanHandle reports whether the event matches the subscription.
func (w *Webhook) CanHandle(ev *alertbus.Event) bool {
	return w.Matches(ev)
}

// Handle evaluates the event's notification rule and, when it says to
// notify, delivers the rendered payload with the retry policy described
// in the package documentation.
func (w *Webhook) Handle(ctx context.Context, ev *alertbus.Event) error {
	if !ev.ShouldNotify() {
		w.logger.Debug("event suppressed by notify rule", "event_type", ev.Type)
		return nil
	}

	if w.breaker != nil && !w.breaker.Allow() {
		return &alertbus.DeliveryError{
			Listener:  w.name,
			EventType: ev.Type,
			Err:       &alertbus.CircuitOpenError{Name: w.name},
		}
	}

	body, err := json.Marshal(w.buildParams(ev))
	if err != nil {
		// Internal failure, not transient: abandon without retries.
		return &alertbus.DeliveryError{Listener: w.name, EventType: ev.Type, Err: err}
	}

	err = w.send(ctx, body)
	if w.breaker != nil {
		if err != nil {
			w.breaker.RecordFailure()
		} else {
			w.breaker.RecordSuccess()
		}
	}
	if err != nil {
		w.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", ev.Type)))
		return &alertbus.DeliveryError{Listener: w.name, EventType: ev.Type, Err: err}
	}

	w.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", ev.Type)))
	w.logger.Info("notification sent", "event_type", ev.Type, "priority", ev.Priority)
	return nil
}

// buildParams renders the event as a webhook payload: one embed with a
// color keyed by priority, one inline field per data entry in sorted key
// order, plus a trailing priority field.
func (w *Webhook) buildParams(ev *alertbus.Event) *discordgo.WebhookParams {
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]*discordgo.MessageEmbedField, 0, len(keys)+1)
	for _, k := range keys {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   titleCase(k),
			Value:  fmt.Sprint(ev.Data[k]),
			Inline: true,
		})
	}
	fields = append(fields, &discordgo.MessageEmbedField{
		Name:   "Priority",
		Value:  ev.Priority.String(),
		Inline: true,
	})

	embed := &discordgo.MessageEmbed{
		Title:     "🔔 " + ev.Type,
		Color:     priorityColor(ev.Priority),
		Timestamp: ev.Timestamp.Format(time.RFC3339),
		Fields:    fields,
	}

	return &discordgo.WebhookParams{
		Username: w.username,
		Embeds:   []*discordgo.MessageEmbed{embed},
	}
}

// send performs the delivery attempts for one payload.
func (w *Webhook) send(ctx context.Context, body []byte) error {
	var lastErr error
	attempts := 0
	maxTotal := w.maxRetries * rateLimitBudgetFactor

	for total := 0; attempts < w.maxRetries && total < maxTotal; total++ {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		status, retryAfter, err := w.post(ctx, body)
		switch {
		case err == nil && status >= 200 && status < 300:
			return nil

		case err == nil && status == http.StatusTooManyRequests:
			w.rateLimited.Add(ctx, 1)
			w.logger.Warn("rate limited by provider", "retry_after", retryAfter)
			lastErr = fmt.Errorf("rate limited, retry after %s", retryAfter)
			if serr := sleep(ctx, retryAfter); serr != nil {
				return serr
			}

		case err == nil && status < http.StatusInternalServerError:
			// Protocol rejection (bad payload, gone webhook): final.
			return fmt.Errorf("webhook rejected delivery: status %d", status)

		default:
			if err == nil {
				err = fmt.Errorf("webhook server error: status %d", status)
			}
			lastErr = err
			attempts++
			w.logger.Warn("delivery attempt failed",
				"attempt", attempts,
				"max_retries", w.maxRetries,
				"error", err)
			if attempts < w.maxRetries {
				if serr := sleep(ctx, w.backoffBase<<(attempts-1)); serr != nil {
					return serr
				}
			}
		}
	}

	return &alertbus.RetryExhaustedError{Attempts: attempts, LastErr: lastErr}
}

// post performs a single POST. A 429 returns the provider-specified retry
// delay alongside the status.
func (w *Webhook) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, retryDelay(resp), nil
	}

	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, 0, nil
}

// retryDelay extracts the retry delay from a 429 response: the JSON body
// discordgo models as TooManyRequests, the Retry-After header as a
// fallback, and one second when neither is usable.
func retryDelay(resp *http.Response) time.Duration {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 32<<10))

	var tmr discordgo.TooManyRequests
	if err := json.Unmarshal(raw, &tmr); err == nil && tmr.RetryAfter > 0 {
		return tmr.RetryAfter
	}

	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}

	return time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func priorityColor(p alertbus.Priority) int {
	switch p {
	case alertbus.PriorityLow:
		return colorGray
	case alertbus.PriorityMedium:
		return colorBlue
	case alertbus.PriorityHigh:
		return colorOrange
	case alertbus.PriorityCritical:
		return colorRed
	default:
		return colorBlue
	}
}

// titleCase converts a snake_case data key to a display name,
// e.g. "change_percent" -> "Change Percent".
func titleCase(s string) string {
	words := strings.Split(s, "_")
	for i, word := range words {
		r := []rune(word)
		if len(r) > 0 {
			r[0] = unicode.ToUpper(r[0])
			words[i] = string(r)
		}
	}
	return strings.Join(words, " ")
}
