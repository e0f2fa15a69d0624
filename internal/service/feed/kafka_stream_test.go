package feed

import (
	"context"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

func newTestHandler(buf int) (*tickHandler, chan *models.Trade, chan *models.Quote) {
	trades := make(chan *models.Trade, buf)
	quotes := make(chan *models.Quote, buf)
	h := &tickHandler{topic: "ticks", trades: trades, quotes: quotes}
	return h, trades, quotes
}

func TestHandleTrade(t *testing.T) {
	h, trades, _ := newTestHandler(1)
	msg := []byte(`{"type":"trade","symbol":"AAPL","price":189.5,"size":100,"t":1717339800123}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	select {
	case tr := <-trades:
		if tr.Symbol != "AAPL" || tr.Price != 189.5 || tr.Size != 100 {
			t.Fatalf("unexpected trade %+v", tr)
		}
		if tr.Timestamp.UnixMilli() != 1717339800123 {
			t.Fatalf("expected millisecond timestamp, got %v", tr.Timestamp)
		}
	default:
		t.Fatal("expected a trade on the channel")
	}
}

func TestHandleQuote(t *testing.T) {
	h, _, quotes := newTestHandler(1)
	msg := []byte(`{"type":"quote","symbol":"MSFT","bid":420.1,"bid_size":2,"ask":420.3,"ask_size":3,"t":1717339800}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	select {
	case q := <-quotes:
		if q.Symbol != "MSFT" || q.Bid != 420.1 || q.Ask != 420.3 {
			t.Fatalf("unexpected quote %+v", q)
		}
		if !q.Timestamp.Equal(time.Unix(1717339800, 0)) {
			t.Fatalf("expected second timestamp, got %v", q.Timestamp)
		}
	default:
		t.Fatal("expected a quote on the channel")
	}
}

func TestHandleMalformed(t *testing.T) {
	h, trades, quotes := newTestHandler(1)
	if err := h.Handle(context.Background(), []byte(`{not json`)); err == nil {
		t.Fatal("expected decode error")
	}
	if len(trades) != 0 || len(quotes) != 0 {
		t.Fatal("malformed message must not produce ticks")
	}
}

func TestHandleDropsOnBackpressure(t *testing.T) {
	h, trades, _ := newTestHandler(1)
	msg := []byte(`{"type":"trade","symbol":"AAPL","price":1,"size":1,"t":1717339800}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// channel full: the second message is dropped, not blocked on
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle under backpressure: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 buffered trade, got %d", len(trades))
	}
}

func TestFillsChannelClosed(t *testing.T) {
	s := NewKafkaStream(Config{Brokers: []string{"localhost:9092"}, Topic: "ticks"}, logger.Nop())
	fills := s.Fills(context.Background())
	select {
	case _, ok := <-fills:
		if ok {
			t.Fatal("expected closed fills channel")
		}
	case <-time.After(time.Second):
		t.Fatal("fills channel did not close")
	}
}
