package alpaca

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	phttp "TradePulse/pkg/http"
	"TradePulse/pkg/logger"
)

// Broker implements the execution venue capability against the Alpaca
// trading REST API.
type Broker struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *phttp.Client
	log       *logger.Logger
}

func NewBroker(baseURL, apiKey, apiSecret string, log *logger.Logger) drepo.Broker {
	return &Broker{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    phttp.NewClient(phttp.WithTimeout(10 * time.Second)),
		log:       log,
	}
}

func (b *Broker) headers() map[string]string {
	return map[string]string{
		"APCA-API-KEY-ID":     b.apiKey,
		"APCA-API-SECRET-KEY": b.apiSecret,
	}
}

// account payloads carry numbers as strings
type accountResponse struct {
	Equity         string `json:"equity"`
	BuyingPower    string `json:"buying_power"`
	TradingBlocked bool   `json:"trading_blocked"`
}

func (b *Broker) GetAccount(ctx context.Context) (models.AccountSnapshot, error) {
	var resp accountResponse
	err := b.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method:  phttp.MethodGet,
		URL:     b.baseURL + "/v2/account",
		Headers: b.headers(),
	}, &resp)
	if err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("get account: %w", err)
	}
	equity, err := strconv.ParseFloat(resp.Equity, 64)
	if err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("parse equity %q: %w", resp.Equity, err)
	}
	buyingPower, err := strconv.ParseFloat(resp.BuyingPower, 64)
	if err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("parse buying power %q: %w", resp.BuyingPower, err)
	}
	return models.AccountSnapshot{
		Equity:         equity,
		BuyingPower:    buyingPower,
		TradingBlocked: resp.TradingBlocked,
	}, nil
}

type clockResponse struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

func (b *Broker) GetClock(ctx context.Context) (models.Clock, error) {
	var resp clockResponse
	err := b.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method:  phttp.MethodGet,
		URL:     b.baseURL + "/v2/clock",
		Headers: b.headers(),
	}, &resp)
	if err != nil {
		return models.Clock{}, fmt.Errorf("get clock: %w", err)
	}
	return models.Clock{IsOpen: resp.IsOpen, NextOpen: resp.NextOpen, NextClose: resp.NextClose}, nil
}

type positionResponse struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
}

func (b *Broker) ListPositions(ctx context.Context) ([]models.BrokerPosition, error) {
	var resp []positionResponse
	err := b.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method:  phttp.MethodGet,
		URL:     b.baseURL + "/v2/positions",
		Headers: b.headers(),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	out := make([]models.BrokerPosition, 0, len(resp))
	for _, p := range resp {
		qty, err := strconv.ParseFloat(p.Qty, 64)
		if err != nil {
			b.log.Warn("skipping position with unparseable qty",
				logger.String("symbol", p.Symbol),
				logger.String("qty", p.Qty))
			continue
		}
		avg, _ := strconv.ParseFloat(p.AvgEntryPrice, 64)
		out = append(out, models.BrokerPosition{Symbol: p.Symbol, Qty: qty, AvgEntryPrice: avg})
	}
	return out, nil
}

type bracketLeg struct {
	StopPrice  string `json:"stop_price,omitempty"`
	LimitPrice string `json:"limit_price,omitempty"`
}

type orderRequest struct {
	Symbol      string      `json:"symbol"`
	Qty         string      `json:"qty"`
	Side        string      `json:"side"`
	Type        string      `json:"type"`
	LimitPrice  string      `json:"limit_price"`
	TimeInForce string      `json:"time_in_force"`
	OrderClass  string      `json:"order_class,omitempty"`
	StopLoss    *bracketLeg `json:"stop_loss,omitempty"`
	TakeProfit  *bracketLeg `json:"take_profit,omitempty"`
}

type orderResponse struct {
	ID string `json:"id"`
}

// SubmitOrder places a limit order, as a bracket when protective exits are
// attached. One-cancels-other between the exits is the venue's concern.
func (b *Broker) SubmitOrder(ctx context.Context, o *models.Order) (string, error) {
	req := orderRequest{
		Symbol:      o.Symbol,
		Qty:         strconv.FormatFloat(o.Qty, 'f', -1, 64),
		Side:        string(o.Side),
		Type:        "limit",
		LimitPrice:  formatPrice(o.LimitPrice),
		TimeInForce: "day",
	}
	if o.Bracket != nil {
		req.OrderClass = "bracket"
		req.StopLoss = &bracketLeg{StopPrice: formatPrice(o.Bracket.StopPrice)}
		req.TakeProfit = &bracketLeg{LimitPrice: formatPrice(o.Bracket.TargetPrice)}
	}

	var resp orderResponse
	err := b.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method:  phttp.MethodPost,
		URL:     b.baseURL + "/v2/orders",
		Headers: b.headers(),
		Body:    req,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("submit order: %w", err)
	}
	return resp.ID, nil
}

func (b *Broker) CancelAllOrders(ctx context.Context) error {
	err := b.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method:  phttp.MethodDelete,
		URL:     b.baseURL + "/v2/orders",
		Headers: b.headers(),
	}, nil)
	if err != nil {
		return fmt.Errorf("cancel all orders: %w", err)
	}
	return nil
}

func (b *Broker) ClosePosition(ctx context.Context, symbol string) error {
	err := b.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method:  phttp.MethodDelete,
		URL:     b.baseURL + "/v2/positions/" + symbol,
		Headers: b.headers(),
	}, nil)
	if err != nil {
		return fmt.Errorf("close position %s: %w", symbol, err)
	}
	return nil
}

// formatPrice rounds to the venue's two-decimal tick.
func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}
