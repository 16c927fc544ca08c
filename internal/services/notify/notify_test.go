package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"ldpm/pkg/logx"
)

type fakeBot struct {
	mu    sync.Mutex
	sent  []string
	block chan struct{} // when non-nil, Send waits until closed
}

func (b *fakeBot) Send(_ tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, what.(string))
	return &tele.Message{}, nil
}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

func TestScheduleFailureFormatsAlert(t *testing.T) {
	t.Parallel()
	bot := &fakeBot{}
	s := newWithSender(Config{Enabled: true, ChatID: 42, RatePerSec: 100}, bot, logx.Nop())
	s.Start(context.Background())

	s.ScheduleFailure(context.Background(), "Evening Off", []string{"Lobby", "Cafeteria"})
	s.Stop(context.Background())

	sent := bot.texts()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	for _, want := range []string{"Evening Off", "2 display(s) failed", "Lobby", "Cafeteria"} {
		if !strings.Contains(sent[0], want) {
			t.Errorf("alert %q missing %q", sent[0], want)
		}
	}
}

func TestDisabledServiceIsNoOp(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Enabled: false}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start(context.Background())
	s.ScheduleFailure(context.Background(), "Evening Off", []string{"Lobby"})
	s.Stop(context.Background())
}

func TestEnabledWithoutTokenFails(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Enabled: true}, logx.Nop()); err == nil {
		t.Fatal("expected error for enabled notifier without a token")
	}
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()
	bot := &fakeBot{block: make(chan struct{})}
	s := newWithSender(Config{Enabled: true, QueueSize: 1, RatePerSec: 100}, bot, logx.Nop())
	s.Start(context.Background())

	// First alert occupies the worker, second fills the queue, third is
	// dropped. None of these calls may block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			s.ScheduleFailure(context.Background(), "S", []string{"D"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ScheduleFailure blocked on a full queue")
	}

	close(bot.block)
	s.Stop(context.Background())
}

func TestStopDrainsQueuedAlerts(t *testing.T) {
	t.Parallel()
	bot := &fakeBot{}
	s := newWithSender(Config{Enabled: true, RatePerSec: 100}, bot, logx.Nop())
	s.Start(context.Background())

	for i := 0; i < 5; i++ {
		s.ScheduleFailure(context.Background(), "S", []string{"D"})
	}
	s.Stop(context.Background())

	if got := len(bot.texts()); got != 5 {
		t.Fatalf("sent = %d, want all 5 drained on Stop", got)
	}
}

func TestStopConcurrentWithAlerts(t *testing.T) {
	t.Parallel()
	// Alerts racing shutdown must be delivered or dropped, never panic on
	// the retired queue. Repeat to widen the interleaving window.
	for i := 0; i < 200; i++ {
		bot := &fakeBot{}
		s := newWithSender(Config{Enabled: true, QueueSize: 4, RatePerSec: 1000}, bot, logx.Nop())
		s.Start(context.Background())

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					s.ScheduleFailure(context.Background(), "S", []string{"D"})
				}
			}()
		}
		s.Stop(context.Background())
		wg.Wait()

		// Intake stays retired after Stop.
		if err := s.enqueue(context.Background(), "late"); !errors.Is(err, ErrDisabled) {
			t.Fatalf("enqueue after Stop = %v, want ErrDisabled", err)
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()
	bot := &fakeBot{}
	s := newWithSender(Config{Enabled: true}, bot, logx.Nop())
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop(context.Background())
	s.Stop(context.Background())
}
