// internal/service/worker.go
package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/metrics"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
	"github.com/unclebandit/campaign-dispatch/internal/transport"
)

// Dispatcher is the delivery side of the engine: a fixed pool of workers
// drains the campaign_sends queue, renders each message and calls the
// transport. Retries are scheduled through the queue's deferred delivery, so
// a backed-off message never holds a worker.
type Dispatcher struct {
	MessageRepo  repository.MessageRepositoryInterface
	CampaignRepo repository.CampaignRepositoryInterface
	UserRepo     repository.UserRepositoryInterface
	Transport    transport.Transport
	Queue        queue.Queue

	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// OnTerminal is invoked after a message reaches sent or failed; the
	// campaign service hooks campaign completion here.
	OnTerminal func(campaignID int64)

	Log *slog.Logger

	ctx context.Context
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// Start subscribes the pool to the work queue. Workers run until the queue
// closes; ctx bounds individual transport calls.
func (d *Dispatcher) Start(ctx context.Context, workers int) error {
	d.ctx = ctx
	return d.Queue.Subscribe(queue.TopicCampaignSends, workers, d.Process)
}

// Process handles one work item end to end. Every path either leaves the row
// queued with a scheduled retry or moves it to a terminal state; duplicate
// queue entries for a terminal row are skipped.
func (d *Dispatcher) Process(messageID int64) error {
	msg, err := d.MessageRepo.GetByID(messageID)
	if err != nil {
		return d.requeueInfra(messageID, err)
	}
	if msg == nil {
		d.logger().Warn("work item references unknown message", slog.Int64("message_id", messageID))
		return nil
	}
	if msg.Terminal() {
		metrics.DispatchOutcomes.WithLabelValues("skipped").Inc()
		return nil
	}

	campaign, err := d.CampaignRepo.GetByID(msg.CampaignID)
	if err != nil {
		return d.requeueInfra(messageID, err)
	}
	user, err := d.UserRepo.GetByID(msg.UserID)
	if err != nil {
		return d.requeueInfra(messageID, err)
	}
	if user == nil {
		return d.fail(msg, msg.AttemptCount+1, "recipient no longer in directory")
	}

	body := RenderTemplate(campaign.Template, user)
	attempt := msg.AttemptCount + 1

	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	providerID, sendErr := d.Transport.Send(ctx, user.Email, body)
	if sendErr == nil {
		now := time.Now().UTC()
		latency := now.Sub(msg.CreatedAt).Milliseconds()
		if latency < 0 {
			latency = 0
		}
		if err := d.MessageRepo.MarkSent(msg.ID, providerID, now, latency, attempt); err != nil {
			return d.requeueInfra(messageID, err)
		}
		metrics.DispatchOutcomes.WithLabelValues("sent").Inc()
		metrics.DeliveryLatency.Observe(float64(latency) / 1000)
		d.notifyTerminal(msg.CampaignID)
		return nil
	}

	var perm *transport.PermanentError
	if errors.As(sendErr, &perm) {
		return d.fail(msg, attempt, sendErr.Error())
	}

	// Transient, or unclassified: unclassified errors are retried because
	// dropping a deliverable message is worse than a wasted attempt.
	if attempt >= d.MaxAttempts {
		return d.fail(msg, attempt, sendErr.Error())
	}
	if err := d.MessageRepo.RecordAttempt(msg.ID, sendErr.Error(), attempt); err != nil {
		return d.requeueInfra(messageID, err)
	}
	delay := d.backoffDelay(attempt)
	if err := d.Queue.PublishAfter(queue.TopicCampaignSends, msg.ID, delay); err != nil {
		d.logger().Error("requeue failed", slog.Int64("message_id", msg.ID), slog.Any("error", err))
		return err
	}
	metrics.DispatchOutcomes.WithLabelValues("retried").Inc()
	d.logger().Info("delivery retry scheduled",
		slog.Int64("message_id", msg.ID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))
	return nil
}

func (d *Dispatcher) fail(msg *model.Message, attempt int, reason string) error {
	if err := d.MessageRepo.MarkFailed(msg.ID, reason, attempt); err != nil {
		return d.requeueInfra(msg.ID, err)
	}
	metrics.DispatchOutcomes.WithLabelValues("failed").Inc()
	d.logger().Warn("delivery failed terminally",
		slog.Int64("message_id", msg.ID),
		slog.Int("attempt", attempt),
		slog.String("reason", reason))
	d.notifyTerminal(msg.CampaignID)
	return nil
}

func (d *Dispatcher) notifyTerminal(campaignID int64) {
	if d.OnTerminal != nil {
		d.OnTerminal(campaignID)
	}
}

// requeueInfra handles storage-layer errors: the item goes back on the queue
// after the base delay without burning a delivery attempt.
func (d *Dispatcher) requeueInfra(messageID int64, cause error) error {
	d.logger().Error("dispatch infrastructure error",
		slog.Int64("message_id", messageID),
		slog.Any("error", cause))
	if err := d.Queue.PublishAfter(queue.TopicCampaignSends, messageID, d.BackoffBase); err != nil {
		return err
	}
	return cause
}

// backoffDelay doubles the base per attempt, capped, with ±10% jitter.
func (d *Dispatcher) backoffDelay(attempt int) time.Duration {
	delay := d.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.BackoffCap {
			delay = d.BackoffCap
			break
		}
	}
	if delay > 0 {
		jitter := time.Duration(rand.Int63n(int64(delay)/5+1)) - delay/10
		delay += jitter
	}
	return delay
}
