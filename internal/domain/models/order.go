package models

import "time"

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the explicit order lifecycle state. Submission is not
// completion: the ledger moves an order forward only on broker fill events
// or on the assumed-fill policy it applies itself.
type OrderStatus string

const (
	OrderSubmitted       OrderStatus = "SUBMITTED"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderRejected        OrderStatus = "REJECTED"
)

// Bracket carries the protective exit prices attached to an entry order.
// One-cancels-other semantics between the two exits are a broker capability.
type Bracket struct {
	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`
}

// Order is a placement request plus its tracked lifecycle.
type Order struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Qty        float64     `json:"qty"`
	LimitPrice float64     `json:"limit_price"`
	Bracket    *Bracket    `json:"bracket,omitempty"`
	Status     OrderStatus `json:"status"`
	FilledQty  float64     `json:"filled_qty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Open reports whether the order can still receive fills.
func (o *Order) Open() bool {
	return o.Status == OrderSubmitted || o.Status == OrderPartiallyFilled
}

// Fill is a broker-delivered execution event re-entering the event loop.
type Fill struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Qty       float64   `json:"qty"`
	Timestamp time.Time `json:"timestamp"`
}

// Position is the per-symbol holding tracked by the ledger. Quantity is
// signed: positive long, negative short.
type Position struct {
	Symbol         string    `json:"symbol"`
	Qty            float64   `json:"qty"`
	AvgEntryPrice  float64   `json:"avg_entry_price"`
	LastSignalTime time.Time `json:"last_signal_time"`
}

// BrokerPosition is the venue's view of a holding, used for reconciliation.
type BrokerPosition struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
}
