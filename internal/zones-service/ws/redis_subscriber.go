package ws

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RunRedisSubscriber escuta o canal de broadcast de rodadas e repassa cada
// mensagem ao Hub até ctx ser cancelado
func RunRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) error {
	sub := r.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	log.Info("ws subscriber listening", zap.String("channel", channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := hub.Relay(msg.Payload); err != nil {
				log.Warn("ws subscriber bad payload", zap.Error(err))
			}
		}
	}
}
