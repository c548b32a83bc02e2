package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/radieske/elimination-zones/internal/game/model"
	cevents "github.com/radieske/elimination-zones/pkg/contracts/events"
	"github.com/radieske/elimination-zones/pkg/contracts/topics"
)

// ZoneReader fornece os totais atuais de uma rodada
type ZoneReader interface {
	GetZones(ctx context.Context, roundID string) (map[int]decimal.Decimal, error)
}

// RedisBroadcaster empurra status e totais de zona para o canal lido pelo websocket.
// Só trata eventos de rodada e de aposta; os demais são ignorados.
type RedisBroadcaster struct {
	r       *redis.Client
	zones   ZoneReader
	channel string
}

func NewRedisBroadcaster(r *redis.Client, zones ZoneReader, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = topics.ZonesRoundBroadcast
	}
	return &RedisBroadcaster{r: r, zones: zones, channel: channel}
}

func (b *RedisBroadcaster) RoundStatus(ctx context.Context, e cevents.RoundStatus) error {
	msg := cevents.RoundBroadcast{RoundID: e.RoundID, Status: e.Status, Ts: time.Now()}
	if e.Status == string(model.RoundWaiting) || e.Status == string(model.RoundRunning) {
		zones, err := b.zones.GetZones(ctx, e.RoundID)
		if err != nil {
			return err
		}
		msg.Zones = encodeZones(zones)
	}
	return b.publish(ctx, msg)
}

func (b *RedisBroadcaster) RoundSettled(context.Context, cevents.RoundSettled) error { return nil }

func (b *RedisBroadcaster) BetsPlaced(ctx context.Context, e cevents.BetsPlaced) error {
	zones, err := b.zones.GetZones(ctx, e.RoundID)
	if err != nil {
		return err
	}
	return b.publish(ctx, cevents.RoundBroadcast{
		RoundID: e.RoundID,
		Status:  e.RoundStatus,
		Zones:   encodeZones(zones),
		Ts:      time.Now(),
	})
}

func (b *RedisBroadcaster) BalanceChanged(context.Context, []string, string) error { return nil }

func (b *RedisBroadcaster) publish(ctx context.Context, msg cevents.RoundBroadcast) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}

func encodeZones(zones map[int]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(zones))
	for z, v := range zones {
		out[strconv.Itoa(z)] = v.StringFixed(model.MoneyPlaces)
	}
	return out
}
