package eventbus

import (
	"context"

	"github.com/annel0/mc-server/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus) (Subscription, error) {
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		fields, err := DecodePayload(ev)
		if err != nil {
			logging.Warn("[EventBus] %s %s: повреждённая нагрузка: %v", ev.ID, ev.EventType, err)
			return
		}
		logging.Debug("[EventBus] %s %s src=%s prio=%d %v", ev.ID, ev.EventType, ev.Source, ev.Priority, fields)
	})
	if err != nil {
		return nil, err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
