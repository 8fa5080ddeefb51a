package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumina-edu/backend/internal/gamification"
	"github.com/lumina-edu/backend/internal/notifications"
	"github.com/lumina-edu/backend/pkg/queue"
)

// Badge titles granted automatically from activity thresholds.
const (
	BadgeFirstPost       = "First Post"
	BadgeActiveDiscusser = "Active Discusser"
	BadgeFirstSubmission = "First Submission"

	activeDiscusserThreshold = 10
)

// EngagementProcessor processes engagement jobs: add leaderboard points, then
// check activity thresholds and award badges with a notification.
type EngagementProcessor struct {
	badges      *gamification.Repository
	leaderboard *gamification.Leaderboard
	notifs      *notifications.Repository
	queue       *queue.Queue
	logger      *zap.Logger
}

// NewEngagementProcessor creates an engagement job processor.
func NewEngagementProcessor(badges *gamification.Repository, leaderboard *gamification.Leaderboard, notifs *notifications.Repository, q *queue.Queue, logger *zap.Logger) *EngagementProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngagementProcessor{badges: badges, leaderboard: leaderboard, notifs: notifs, queue: q, logger: logger}
}

// Process executes one engagement job.
func (p *EngagementProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypePointsAward {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.PointsAwardPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := p.leaderboard.AddPoints(ctx, payload.UserID, payload.UserName, payload.Points); err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	count, err := p.badges.CountActivity(ctx, payload.UserID, payload.Activity)
	if err != nil {
		return fmt.Errorf("count activity: %w", err)
	}

	for _, title := range thresholdBadges(payload.Activity, count) {
		awarded, err := p.badges.AwardBadge(ctx, payload.UserID, title)
		if err != nil {
			return fmt.Errorf("award badge: %w", err)
		}
		if !awarded {
			continue
		}
		if err := p.notifs.Create(ctx, payload.UserID, "badge", "You earned the \""+title+"\" badge"); err != nil {
			p.logger.Warn("badge notification failed", zap.Error(err), zap.String("user_id", payload.UserID.String()))
		}
		p.logger.Info("badge awarded", zap.String("user_id", payload.UserID.String()), zap.String("title", title))
	}
	return nil
}

// thresholdBadges returns the badges a user qualifies for at the given
// activity count. AwardBadge is idempotent, so re-qualifying is harmless.
func thresholdBadges(activity string, count int) []string {
	var titles []string
	switch activity {
	case "post":
		if count >= 1 {
			titles = append(titles, BadgeFirstPost)
		}
		if count >= activeDiscusserThreshold {
			titles = append(titles, BadgeActiveDiscusser)
		}
	case "submission":
		if count >= 1 {
			titles = append(titles, BadgeFirstSubmission)
		}
	}
	return titles
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EngagementProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("engagement worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("engagement worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
