package timeslot

import (
	"log/slog"
	"time"

	"github.com/BruksfildServices01/slot-scheduler/internal/timezone"
)

const DefaultMaxActiveSlots = 50

// Options carries the policy shared by the slot use cases.
type Options struct {
	Normalizer     *timezone.Normalizer
	MaxActiveSlots int
	Now            func() time.Time
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Normalizer == nil {
		o.Normalizer = timezone.NewNormalizer(timezone.DefaultTimezone)
	}
	if o.MaxActiveSlots <= 0 {
		o.MaxActiveSlots = DefaultMaxActiveSlots
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func reasonOr(reason *string, def string) *string {
	if reason != nil && *reason != "" {
		return reason
	}
	return &def
}
