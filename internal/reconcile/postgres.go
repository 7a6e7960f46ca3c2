package reconcile

import (
	"github.com/yanun0323/errors"

	"main/internal/domain"
	"main/pkg/conn"
)

// PositionRow mirrors the positions table kept by the back office.
type PositionRow struct {
	Symbol       string  `gorm:"column:symbol;primaryKey"`
	NetQuantity  float64 `gorm:"column:net_quantity"`
	AveragePrice float64 `gorm:"column:average_price"`
	RealizedPnL  float64 `gorm:"column:realized_pnl"`
}

// TableName implements gorm's table naming.
func (PositionRow) TableName() string { return "positions" }

// OrderRow mirrors the open_orders table.
type OrderRow struct {
	ID         uint64  `gorm:"column:id;primaryKey"`
	StrategyID uint32  `gorm:"column:strategy_id"`
	Symbol     string  `gorm:"column:symbol"`
	Side       string  `gorm:"column:side"`
	Quantity   float64 `gorm:"column:quantity"`
	Price      float64 `gorm:"column:price"`
	Status     string  `gorm:"column:status"`
	FilledQty  float64 `gorm:"column:filled_quantity"`
}

// TableName implements gorm's table naming.
func (OrderRow) TableName() string { return "open_orders" }

// Postgres reconciles from the back-office database. Warm-up only; it
// holds a single connection pool and performs blocking reads.
type Postgres struct {
	client *conn.Client
}

// NewPostgres connects to the database described by the options.
func NewPostgres(opt conn.Option) (*Postgres, error) {
	client, err := conn.New(opt)
	if err != nil {
		return nil, errors.Wrap(err, "connect reconciliation database")
	}
	return &Postgres{client: client}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.client.Close()
}

// ReconcilePositions loads every stored position.
func (p *Postgres) ReconcilePositions() ([]domain.Position, error) {
	var rows []PositionRow
	if err := p.client.DB().Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load positions")
	}

	positions := make([]domain.Position, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, domain.Position{
			Symbol:       row.Symbol,
			NetQuantity:  row.NetQuantity,
			AveragePrice: row.AveragePrice,
			RealizedPnL:  row.RealizedPnL,
		})
	}
	return positions, nil
}

// ReconcileOrders loads every open order.
func (p *Postgres) ReconcileOrders() ([]domain.Order, error) {
	var rows []OrderRow
	if err := p.client.DB().Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load open orders")
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, domain.Order{
			ID:         row.ID,
			StrategyID: row.StrategyID,
			Symbol:     row.Symbol,
			Side:       parseSide(row.Side),
			Quantity:   row.Quantity,
			Price:      row.Price,
			Status:     parseStatus(row.Status),
			FilledQty:  row.FilledQty,
		})
	}
	return orders, nil
}

func parseSide(s string) domain.Side {
	if s == "sell" {
		return domain.SideSell
	}
	return domain.SideBuy
}

func parseStatus(s string) domain.OrderStatus {
	switch s {
	case "new":
		return domain.OrderStatusNew
	case "pending_new":
		return domain.OrderStatusPendingNew
	case "accepted":
		return domain.OrderStatusAccepted
	case "partially_filled":
		return domain.OrderStatusPartiallyFilled
	default:
		return domain.OrderStatusNew
	}
}
