// Package notify sends Telegram alerts when a scheduled run fails.
//
// The service is send-only: it never polls for updates. Alerts go
// through a bounded queue drained by a single rate-limited worker, so a
// slow or unreachable Telegram API cannot stall schedule execution.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"ldpm/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
)

type Config struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Token      string `json:"token" yaml:"token"`
	ChatID     int64  `json:"chat_id" yaml:"chat_id"`
	QueueSize  int    `json:"queue_size" yaml:"queue_size"`
	RatePerSec int    `json:"rate_per_sec" yaml:"rate_per_sec"`
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	return c
}

// sender is the slice of *tele.Bot the worker needs.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Service struct {
	cfg     Config
	bot     sender
	limiter *rate.Limiter
	log     logx.Logger

	mu        sync.Mutex
	queue     chan string
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

// New builds the service. With Enabled false it returns a no-op service
// and never touches the Telegram API.
func New(cfg Config, log logx.Logger) (*Service, error) {
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:     cfg,
		log:     log.With(logx.String("service", "notify")),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
	if !cfg.Enabled {
		return s, nil
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify: telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	s.bot = b
	return s, nil
}

func newWithSender(cfg Config, bot sender, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:     cfg,
		bot:     bot,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Start launches the worker. Idempotent; a no-op when disabled.
func (s *Service) Start(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bot == nil || s.queue != nil {
		return
	}
	s.queue = make(chan string, s.cfg.QueueSize)
	// Worker lifetime is bound to Stop, not the caller's start context.
	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel

	s.workerWG.Add(1)
	go s.worker(runCtx, s.queue)
}

// Stop closes intake and drains the queue until ctx expires. The queue
// field is nilled before the close, under the same lock enqueue sends
// under, so late alerts see a retired notifier instead of a closed
// channel.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	cancel := s.runCancel
	s.queue = nil
	s.runCancel = nil
	s.mu.Unlock()
	if q == nil {
		return
	}
	close(q)

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("notifier drain timed out, dropping queued alerts")
	}
	cancel()
}

// ScheduleFailure formats and enqueues an alert for a failed run. Never
// blocks: a full queue drops the alert with a warning.
func (s *Service) ScheduleFailure(ctx context.Context, schedule string, failed []string) {
	text := fmt.Sprintf("⚠️ Schedule %q: %d display(s) failed: %s",
		schedule, len(failed), strings.Join(failed, ", "))
	if err := s.enqueue(ctx, text); err != nil && !errors.Is(err, ErrDisabled) {
		s.log.Warn("alert dropped",
			logx.String("schedule", schedule), logx.Err(err))
	}
}

func (s *Service) enqueue(ctx context.Context, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// The non-blocking send stays under the lock: Stop retires the queue
	// under the same lock before closing it, so a send can never race the
	// close.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return ErrDisabled
	}
	select {
	case s.queue <- text:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) worker(runCtx context.Context, q <-chan string) {
	defer s.workerWG.Done()
	for text := range q {
		if err := s.limiter.Wait(runCtx); err != nil {
			return
		}
		s.send(runCtx, text)
	}
}

func (s *Service) send(runCtx context.Context, text string) {
	callCtx, cancel := context.WithTimeout(runCtx, 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(tele.ChatID(s.cfg.ChatID), text)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warn("telegram send failed", logx.Err(err))
			return
		}
		s.log.Debug("alert sent", logx.Int64("chat_id", s.cfg.ChatID))
	case <-callCtx.Done():
		s.log.Warn("telegram send timed out")
	}
}
