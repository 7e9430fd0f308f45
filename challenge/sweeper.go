package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultSweepInterval = 60 * time.Second

// StartSweeper runs Sweep every interval until ctx is done.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.log.WithError(err).Error("Challenge sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule challenge sweep: %w", err)
	}

	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
