package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/settings"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeSettings struct {
	cfg settings.Settings
	err error
}

func (f fakeSettings) Load(context.Context) (settings.Settings, error) { return f.cfg, f.err }

type fakeDaily struct {
	stats *model.DailyStats
	err   error
	asked time.Time
}

func (f *fakeDaily) GetDailyStats(_ context.Context, day time.Time) (*model.DailyStats, error) {
	f.asked = day
	return f.stats, f.err
}

type fakeActivity struct {
	stats *model.ActivityStats
	err   error
	hours int
}

func (f *fakeActivity) Stats(_ context.Context, hours int) (*model.ActivityStats, error) {
	f.hours = hours
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

var errDown = errors.New("database is down")
