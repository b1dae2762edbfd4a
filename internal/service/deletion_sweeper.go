package service

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredSweeper — источник откатов истёкших запросов удаления.
type ExpiredSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// DeletionSweeper периодически откатывает истёкшие запросы удаления,
// даже если по ссылке подтверждения никто не переходил.
type DeletionSweeper struct {
	target   ExpiredSweeper
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDeletionSweeper создаёт фоновый сервис отката.
func NewDeletionSweeper(target ExpiredSweeper, interval time.Duration, logger *slog.Logger) *DeletionSweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &DeletionSweeper{
		target:   target,
		interval: interval,
		logger:   logger.With(slog.String("component", "deletion_sweeper")),
	}
}

// Start запускает фоновую горутину. Вызывается один раз при старте приложения.
func (s *DeletionSweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Откат истёкших запросов удаления запущен",
			slog.String("interval", s.interval.String()),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Откат истёкших запросов удаления остановлен")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce выполняет один проход отката.
func (s *DeletionSweeper) RunOnce(ctx context.Context) int {
	n, err := s.target.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("Ошибка отката истёкших запросов удаления", slog.String("error", err.Error()))
	}
	if n > 0 {
		s.logger.Info("Истёкшие запросы удаления откатаны", slog.Int("count", n))
	}
	return n
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *DeletionSweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
