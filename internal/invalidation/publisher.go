package invalidation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/spotmeet/spotmeet/internal/config"
	"github.com/spotmeet/spotmeet/internal/observability"
)

// Publisher is called by write paths after a successful backing-store
// commit. The send is fire-and-forget from the caller's perspective.
type Publisher interface {
	PublishInvalidation(gridID string)
}

// KafkaPublisher buffers messages on a bounded local queue and drains it
// from worker goroutines with capped exponential backoff. A full queue
// or exhausted retries drops the message: the staleness risk is bounded
// by the cache TTL.
type KafkaPublisher struct {
	log      *slog.Logger
	producer sarama.SyncProducer
	topic    string

	queue chan Message
	wg    sync.WaitGroup

	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewKafkaPublisher(log *slog.Logger, producer sarama.SyncProducer, topic string, cfg config.PublishCfg) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	p := &KafkaPublisher{
		log:         log,
		producer:    producer,
		topic:       topic,
		queue:       make(chan Message, cfg.QueueSize),
		maxRetry:    cfg.MaxRetry,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.workerLoop()
	}
	return p
}

// PublishInvalidation enqueues an INVALIDATE_GRID message. It never
// blocks the write path: if the queue is full the message is dropped and
// logged.
func (p *KafkaPublisher) PublishInvalidation(gridID string) {
	msg := Message{Action: ActionInvalidateGrid, GridID: gridID}
	select {
	case p.queue <- msg:
	default:
		observability.IncPublishDrop(p.topic, "queue_full")
		p.log.Warn("invalidation queue full, dropping message", "grid_id", gridID)
	}
}

// Close drains the queue and releases the workers. The producer itself
// is owned by the caller.
func (p *KafkaPublisher) Close() {
	close(p.queue)
	p.wg.Wait()
}

func (p *KafkaPublisher) workerLoop() {
	defer p.wg.Done()
	for msg := range p.queue {
		p.sendWithRetry(msg)
	}
}

func (p *KafkaPublisher) sendWithRetry(msg Message) {
	for attempt := 0; ; attempt++ {
		err := p.sendOnce(msg)
		if err == nil {
			return
		}
		if attempt >= p.maxRetry {
			observability.IncPublishDrop(p.topic, "retries_exhausted")
			p.log.Error("invalidation publish failed, dropping message",
				"grid_id", msg.GridID, "attempts", attempt+1, "err", err)
			return
		}
		backoff := p.baseBackoff * time.Duration(1<<attempt)
		if backoff > p.maxBackoff {
			backoff = p.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (p *KafkaPublisher) sendOnce(msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	// key by grid id so invalidations for one cell share a partition
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.GridID),
		Value: sarama.ByteEncoder(body),
	})
	return err
}

// NopPublisher discards every message; used when invalidation is
// disabled by configuration.
type NopPublisher struct{}

func (NopPublisher) PublishInvalidation(string) {}
