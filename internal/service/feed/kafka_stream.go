package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	pkgkafka "TradePulse/pkg/kafka"
	"TradePulse/pkg/logger"
)

// Config holds the Kafka tick feed settings.
type Config struct {
	Brokers    []string
	Topic      string
	GroupID    string
	Workers    int
	BufferSize int
	MinBytes   int
	MaxBytes   int
}

// KafkaStream adapts a Kafka tick topic to the MarketStream capability.
// The topic carries no execution events, so Fills is always empty; runs on
// this feed pair it with the assumed-fill policy.
type KafkaStream struct {
	cfg Config
	log *logger.Logger

	mu        sync.Mutex
	consumer  *pkgkafka.Consumer
	connected bool

	trades chan *models.Trade
	quotes chan *models.Quote
	errs   chan error
}

func NewKafkaStream(cfg Config, log *logger.Logger) drepo.MarketStream {
	return &KafkaStream{
		cfg:    cfg,
		log:    log,
		trades: make(chan *models.Trade, 1024),
		quotes: make(chan *models.Quote, 1024),
		errs:   make(chan error, 4),
	}
}

// Connect builds the consumer and registers the tick handler.
func (s *KafkaStream) Connect(_ context.Context) error {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(s.cfg.Brokers),
		pkgkafka.WithConsumerGroupID(s.cfg.GroupID),
		pkgkafka.WithConsumerWorkers(s.cfg.Workers),
		pkgkafka.WithConsumerBufferSize(s.cfg.BufferSize),
		pkgkafka.WithConsumerFetch(s.cfg.MinBytes, s.cfg.MaxBytes),
	)
	if err != nil {
		return fmt.Errorf("kafka feed: %w", err)
	}
	consumer.RegisterHandler(&tickHandler{
		topic:  s.cfg.Topic,
		trades: s.trades,
		quotes: s.quotes,
	})

	s.mu.Lock()
	s.consumer = consumer
	s.mu.Unlock()
	return nil
}

// Subscribe starts the consumer workers.
func (s *KafkaStream) Subscribe(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumer == nil {
		return fmt.Errorf("kafka feed not connected")
	}
	if err := s.consumer.Start(); err != nil {
		return fmt.Errorf("kafka feed start: %w", err)
	}
	s.connected = true
	s.log.Info("kafka feed started",
		logger.Strings("brokers", s.cfg.Brokers),
		logger.String("topic", s.cfg.Topic))
	return nil
}

func (s *KafkaStream) Read(_ context.Context) (<-chan *models.Trade, <-chan *models.Quote, <-chan error) {
	return s.trades, s.quotes, s.errs
}

// Fills returns a closed channel: a tick topic has no execution events.
func (s *KafkaStream) Fills(_ context.Context) <-chan *models.Fill {
	fills := make(chan *models.Fill)
	close(fills)
	return fills
}

// Reconnect tears the consumer down and rebuilds it.
func (s *KafkaStream) Reconnect(ctx context.Context) error {
	if err := s.Close(); err != nil {
		s.log.Warn("kafka feed close during reconnect", logger.Error(err))
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

func (s *KafkaStream) Close() error {
	s.mu.Lock()
	consumer := s.consumer
	s.consumer = nil
	s.connected = false
	s.mu.Unlock()
	if consumer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return consumer.Stop(ctx)
}

func (s *KafkaStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// tickHandler decodes tick messages and routes them to the stream channels.
type tickHandler struct {
	topic  string
	trades chan<- *models.Trade
	quotes chan<- *models.Quote
}

func (h *tickHandler) Topic() string { return h.topic }

// incoming message schema:
//
//	{"type":"trade","symbol":"AAPL","price":189.5,"size":100,"t":1717339800123}
//	{"type":"quote","symbol":"AAPL","bid":189.4,"bid_size":2,"ask":189.6,"ask_size":3,"t":...}
func (h *tickHandler) Handle(_ context.Context, b []byte) error {
	var m struct {
		Type    string  `json:"type"`
		Symbol  string  `json:"symbol"`
		Price   float64 `json:"price"`
		Size    float64 `json:"size"`
		Bid     float64 `json:"bid"`
		BidSize float64 `json:"bid_size"`
		Ask     float64 `json:"ask"`
		AskSize float64 `json:"ask_size"`
		T       int64   `json:"t"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}

	ts := time.UnixMilli(m.T)
	if m.T < 1e11 { // seconds
		ts = time.Unix(m.T, 0)
	}

	switch m.Type {
	case "quote":
		quote := &models.Quote{
			Symbol: m.Symbol,
			Bid:    m.Bid, BidSize: m.BidSize,
			Ask: m.Ask, AskSize: m.AskSize,
			Timestamp: ts,
		}
		select {
		case h.quotes <- quote:
		default:
			// drop on backpressure
		}
	default:
		trade := &models.Trade{Symbol: m.Symbol, Price: m.Price, Size: m.Size, Timestamp: ts}
		select {
		case h.trades <- trade:
		default:
		}
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*tickHandler)(nil)
