package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	cevents "github.com/radieske/elimination-zones/pkg/contracts/events"
	"github.com/radieske/elimination-zones/pkg/contracts/topics"
)

// Topics nomeia os tópicos de cada evento; vazio usa o default de pkg/contracts/topics
type Topics struct {
	RoundStatus    string
	RoundSettled   string
	BetsPlaced     string
	BalanceChanged string
}

func (t Topics) withDefaults() Topics {
	if t.RoundStatus == "" {
		t.RoundStatus = topics.RoundStatus
	}
	if t.RoundSettled == "" {
		t.RoundSettled = topics.RoundSettled
	}
	if t.BetsPlaced == "" {
		t.BetsPlaced = topics.BetsPlaced
	}
	if t.BalanceChanged == "" {
		t.BalanceChanged = topics.UserBalanceChanged
	}
	return t
}

// MessageWriter é o pedaço do kafka.Writer usado aqui
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publica os eventos de rodada, aposta e saldo.
// O writer não fixa tópico: cada mensagem carrega o seu.
type KafkaPublisher struct {
	writer MessageWriter
	topics Topics
	log    *zap.Logger
	now    func() time.Time
}

func NewKafkaPublisher(w MessageWriter, t Topics, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topics: t.withDefaults(), log: log, now: time.Now}
}

func (p *KafkaPublisher) RoundStatus(ctx context.Context, e cevents.RoundStatus) error {
	if e.Ts.IsZero() {
		e.Ts = p.now()
	}
	return p.write(ctx, p.topics.RoundStatus, e.RoundID, e)
}

func (p *KafkaPublisher) RoundSettled(ctx context.Context, e cevents.RoundSettled) error {
	if e.Ts.IsZero() {
		e.Ts = p.now()
	}
	return p.write(ctx, p.topics.RoundSettled, e.RoundID, e)
}

func (p *KafkaPublisher) BetsPlaced(ctx context.Context, e cevents.BetsPlaced) error {
	if e.Ts.IsZero() {
		e.Ts = p.now()
	}
	return p.write(ctx, p.topics.BetsPlaced, e.RoundID, e)
}

// BalanceChanged emite uma mensagem por usuário, chaveada pelo userId
func (p *KafkaPublisher) BalanceChanged(ctx context.Context, userIDs []string, reason string) error {
	if len(userIDs) == 0 {
		return nil
	}
	ts := p.now()
	msgs := make([]kafka.Message, 0, len(userIDs))
	for _, id := range userIDs {
		b, err := json.Marshal(cevents.BalanceChanged{UserID: id, Reason: reason, Ts: ts})
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Topic: p.topics.BalanceChanged, Key: []byte(id), Value: b, Time: ts})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("failed to publish balance changes", zap.Int("users", len(userIDs)), zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) write(ctx context.Context, topic, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: b, Time: p.now()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish event", zap.String("topic", topic), zap.String("key", key), zap.Error(err))
		return err
	}
	p.log.Debug("published event", zap.String("topic", topic), zap.String("key", key))
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
