package delivery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"ankaa/models"
)

// RetryPolicy is the backoff curve and its bounds.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
	// MaxDeferrals caps rate-limit postponements, which do not consume attempts.
	MaxDeferrals int
}

// DefaultRetryPolicy is 5s, 10s, 20s then terminal.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second, BackoffFactor: 2, MaxDeferrals: 10}

// Delay returns the wait before the retry that follows a failure at the given attempt count.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempts)))
}

// Action is what happens to a job after an attempt.
type Action string

const (
	ActionDeliver Action = "deliver"
	ActionRetry   Action = "retry"
	ActionFail    Action = "fail"
)

// Outcome is the Controller's verdict for one attempt.
type Outcome struct {
	Action Action
	Class  Class
	// Delay is the wait before Next runs; only set for ActionRetry.
	Delay  time.Duration
	Reason string
	// Next is the job to run again; only set for ActionRetry.
	Next *models.DeliveryJob
}

// Controller turns attempt results into record transitions and retry decisions.
type Controller struct {
	policy  RetryPolicy
	tracker *Tracker
	logger  *zap.Logger
}

func NewController(policy RetryPolicy, tracker *Tracker, logger *zap.Logger) *Controller {
	return &Controller{policy: policy, tracker: tracker, logger: logger.Named("retry")}
}

func (c *Controller) Policy() RetryPolicy {
	return c.policy
}

// Decide classifies err and picks the next step for job. It has no side effects.
func (c *Controller) Decide(job models.DeliveryJob, err error) Outcome {
	if err == nil {
		return Outcome{Action: ActionDeliver}
	}

	class := Classify(err)
	switch class {
	case ClassConfirmationNoise:
		return Outcome{Action: ActionDeliver, Class: class}
	case ClassRecipientInvalid, ClassOptedOut, ClassNotConfigured:
		return Outcome{Action: ActionFail, Class: class, Reason: err.Error()}
	case ClassRateLimited:
		if job.Deferrals >= c.policy.MaxDeferrals {
			return Outcome{Action: ActionFail, Class: class, Reason: fmt.Sprintf("rate limit deferrals exceeded (%d): %v", job.Deferrals, err)}
		}
		next := job
		next.Deferrals++
		return Outcome{Action: ActionRetry, Class: class, Delay: rateLimitWait(err), Reason: err.Error(), Next: &next}
	case ClassUnclassified:
		if job.UnclassifiedRetries >= 1 {
			return Outcome{Action: ActionFail, Class: class, Reason: "unclassified error after retry: " + err.Error()}
		}
	}

	if job.Attempts >= c.policy.MaxAttempts {
		return Outcome{Action: ActionFail, Class: class, Reason: fmt.Sprintf("max retries exceeded (%d): %v", c.policy.MaxAttempts, err)}
	}
	next := job
	next.Attempts++
	if class == ClassUnclassified {
		next.UnclassifiedRetries++
	}
	return Outcome{
		Action: ActionRetry,
		Class:  class,
		Delay:  c.policy.Delay(job.Attempts),
		Reason: err.Error(),
		Next:   &next,
	}
}

// Handle decides the outcome of an attempt and records it. A DELIVERED outcome
// also stamps the notification's sentAt if no other channel has.
func (c *Controller) Handle(ctx context.Context, job models.DeliveryJob, messageID string, sendErr error) (Outcome, error) {
	out := c.Decide(job, sendErr)

	var err error
	switch out.Action {
	case ActionDeliver:
		if out.Class == ClassConfirmationNoise {
			c.logger.Info("Treating confirmation failure as delivered",
				zap.String("notification_id", job.NotificationID),
				zap.String("channel", string(job.Channel)),
				zap.Error(sendErr),
			)
		}
		_, err = c.tracker.MarkDelivered(ctx, job, messageID)
	case ActionRetry:
		_, err = c.tracker.MarkRetrying(ctx, job, out.Next.Attempts, out.Reason)
	case ActionFail:
		_, err = c.tracker.MarkFailed(ctx, job, job.Attempts, out.Reason)
	}
	if err != nil {
		return out, fmt.Errorf("record %s outcome: %w", out.Action, err)
	}
	return out, nil
}

func rateLimitWait(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) && rl.Wait > 0 {
		return rl.Wait
	}
	return time.Second
}
