package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream implements a MarketStream backed by the Alpaca v2 data WebSocket,
// plus a second socket on the trading API for order fill events.
type Stream struct {
	apiKey         string
	apiSecret      string
	dataURL        string
	updatesURL     string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	fillsConn *websocket.Conn
	connected bool
}

// NewStream creates an Alpaca MarketStream. updatesURL may be empty when
// fill events are not wanted (e.g. data-only runs).
func NewStream(apiKey, apiSecret, dataURL, updatesURL string, symbols []string,
	reconnectDelay, pingInterval time.Duration, log *logger.Logger) drepo.MarketStream {
	return &Stream{
		apiKey:         apiKey,
		apiSecret:      apiSecret,
		dataURL:        dataURL,
		updatesURL:     updatesURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect dials the data socket and authenticates.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.dataURL, nil)
	if err != nil {
		return fmt.Errorf("alpaca connect: %w", err)
	}
	auth := map[string]string{"action": "auth", "key": s.apiKey, "secret": s.apiSecret}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return fmt.Errorf("alpaca auth: %w", err)
	}

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.log.Info("alpaca stream connected", logger.String("url", s.dataURL))
	return nil
}

// Subscribe requests trades and quotes for the configured symbols.
func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	conn, connected := s.conn, s.connected
	s.mu.Unlock()
	if conn == nil || !connected {
		return fmt.Errorf("alpaca stream not connected")
	}

	sub := map[string]interface{}{
		"action": "subscribe",
		"trades": s.symbols,
		"quotes": s.symbols,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("alpaca subscribe: %w", err)
	}
	s.log.Info("alpaca subscribed", logger.Strings("symbols", s.symbols))
	return nil
}

// data stream frames: "T" discriminates trades ("t"), quotes ("q") and
// control messages ("success"/"error"/"subscription")
type dataFrame struct {
	T       string  `json:"T"`
	Symbol  string  `json:"S"`
	Price   float64 `json:"p"`
	Size    float64 `json:"s"`
	BidPx   float64 `json:"bp"`
	BidSz   float64 `json:"bs"`
	AskPx   float64 `json:"ap"`
	AskSz   float64 `json:"as"`
	Stamp   string  `json:"t"`
	Message string  `json:"msg"`
}

// Read streams trades, quotes and transport errors until ctx is cancelled.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Trade, <-chan *models.Quote, <-chan error) {
	trades := make(chan *models.Trade, 1024)
	quotes := make(chan *models.Quote, 1024)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(trades)
		defer close(quotes)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				// a transport drop must not end the feed; the channels
				// stay open across redials
				if err := s.redial(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					select {
					case errs <- fmt.Errorf("alpaca redial: %w", err):
					default:
					}
				}
				continue
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.mu.Lock()
				if s.conn == conn {
					s.conn = nil
					s.connected = false
				}
				s.mu.Unlock()
				_ = conn.Close()
				select {
				case errs <- fmt.Errorf("alpaca read: %w", err):
				default:
				}
				continue
			}

			var frames []dataFrame
			if err := json.Unmarshal(b, &frames); err != nil {
				continue
			}
			for _, f := range frames {
				switch f.T {
				case "t":
					ts, _ := time.Parse(time.RFC3339Nano, f.Stamp)
					trade := &models.Trade{Symbol: f.Symbol, Price: f.Price, Size: f.Size, Timestamp: ts}
					select {
					case trades <- trade:
					default:
						// drop on backpressure
					}
				case "q":
					ts, _ := time.Parse(time.RFC3339Nano, f.Stamp)
					quote := &models.Quote{
						Symbol: f.Symbol,
						Bid:    f.BidPx, BidSize: f.BidSz,
						Ask: f.AskPx, AskSize: f.AskSz,
						Timestamp: ts,
					}
					select {
					case quotes <- quote:
					default:
					}
				case "error":
					select {
					case errs <- fmt.Errorf("alpaca stream: %s", f.Message):
					default:
					}
				}
			}
		}
	}()

	return trades, quotes, errs
}

type updateFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		Event     string `json:"event"`
		Price     string `json:"price"`
		Qty       string `json:"qty"`
		Timestamp string `json:"timestamp"`
		Order     struct {
			ID     string `json:"id"`
			Symbol string `json:"symbol"`
			Side   string `json:"side"`
		} `json:"order"`
	} `json:"data"`
}

// Fills streams execution events from the trading API's update socket.
// Returns an immediately-closed channel when no updates URL is configured.
func (s *Stream) Fills(ctx context.Context) <-chan *models.Fill {
	fills := make(chan *models.Fill, 256)
	if s.updatesURL == "" {
		close(fills)
		return fills
	}

	go func() {
		defer close(fills)

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.updatesURL, nil)
		if err != nil {
			s.log.Warn("alpaca updates connect failed", logger.Error(err))
			return
		}
		s.mu.Lock()
		s.fillsConn = conn
		s.mu.Unlock()

		auth := map[string]interface{}{
			"action": "authenticate",
			"data":   map[string]string{"key_id": s.apiKey, "secret_key": s.apiSecret},
		}
		listen := map[string]interface{}{
			"action": "listen",
			"data":   map[string][]string{"streams": {"trade_updates"}},
		}
		if err := conn.WriteJSON(auth); err != nil {
			s.log.Warn("alpaca updates auth failed", logger.Error(err))
			return
		}
		if err := conn.WriteJSON(listen); err != nil {
			s.log.Warn("alpaca updates listen failed", logger.Error(err))
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				s.log.Warn("alpaca updates read failed", logger.Error(err))
				return
			}
			var f updateFrame
			if err := json.Unmarshal(b, &f); err != nil || f.Stream != "trade_updates" {
				continue
			}
			if f.Data.Event != "fill" && f.Data.Event != "partial_fill" {
				continue
			}
			price, _ := strconv.ParseFloat(f.Data.Price, 64)
			qty, _ := strconv.ParseFloat(f.Data.Qty, 64)
			ts, _ := time.Parse(time.RFC3339Nano, f.Data.Timestamp)
			fill := &models.Fill{
				OrderID:   f.Data.Order.ID,
				Symbol:    f.Data.Order.Symbol,
				Side:      models.Side(f.Data.Order.Side),
				Price:     price,
				Qty:       qty,
				Timestamp: ts,
			}
			select {
			case fills <- fill:
			default:
			}
		}
	}()

	return fills
}

// redial waits out the reconnect delay, then re-establishes the data
// socket and its subscription.
func (s *Stream) redial(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Reconnect closes the data socket and re-establishes the subscription.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	return s.redial(ctx)
}

// Close closes both sockets.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.fillsConn != nil {
		_ = s.fillsConn.Close()
		s.fillsConn = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// IsConnected reports the data socket status.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
