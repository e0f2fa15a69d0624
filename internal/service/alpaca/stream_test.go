package alpaca

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// dropOnceServer serves the data socket protocol: it reads the auth frame,
// emits one trade, and hangs up. The second dial additionally reads the
// subscribe frame, emits a second trade, and stays up.
func dropOnceServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	var mu sync.Mutex
	dials := 0
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		mu.Lock()
		dials++
		n := dials
		mu.Unlock()

		if _, _, err := conn.ReadMessage(); err != nil { // auth
			return
		}
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(`[{"T":"t","S":"AAPL","p":100.5,"s":10,"t":"2024-06-03T13:30:00Z"}]`))
			return // hang up after one trade
		}
		if _, _, err := conn.ReadMessage(); err != nil { // subscribe
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"T":"t","S":"AAPL","p":101.5,"s":20,"t":"2024-06-03T13:30:01Z"}]`))
		conn.ReadMessage() // block until the client closes
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recvTrade(t *testing.T, trades <-chan *models.Trade) *models.Trade {
	t.Helper()
	select {
	case tr, ok := <-trades:
		if !ok {
			t.Fatal("trades channel closed; the feed must stay alive across transport drops")
		}
		return tr
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a trade")
	}
	return nil
}

func TestReadSurvivesSocketDrop(t *testing.T) {
	srv, url := dropOnceServer(t)
	defer srv.Close()

	s := NewStream("key", "secret", url, "", []string{"AAPL"},
		10*time.Millisecond, time.Minute, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	// cancel before closing so the read goroutine exits instead of redialing
	defer s.Close()
	defer cancel()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	trades, _, errs := s.Read(ctx)

	first := recvTrade(t, trades)
	if first.Price != 100.5 {
		t.Fatalf("unexpected first trade %+v", first)
	}

	// the server hung up; the stream must surface an error and redial on
	// its own instead of closing the channels
	second := recvTrade(t, trades)
	if second.Price != 101.5 || second.Size != 20 {
		t.Fatalf("unexpected trade after redial %+v", second)
	}

	select {
	case _, ok := <-errs:
		if !ok {
			t.Fatal("errs channel closed while the stream is alive")
		}
	default:
		// the transport error may already have been consumed by the
		// buffered send; delivery of the second trade is the invariant
	}

	if !s.IsConnected() {
		t.Fatal("stream should report connected after redial")
	}
}
