package domain

// Direction is the side of a trade from the trader's point of view.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// IsValid reports whether the direction is one of the known values.
func (d Direction) IsValid() bool {
	return d == Long || d == Short
}

// EntrySide maps a trade direction to the exchange order side that opens it.
func (d Direction) EntrySide() OrderSide {
	if d == Short {
		return Sell
	}
	return Buy
}

// ExitSide maps a trade direction to the exchange order side that closes it.
func (d Direction) ExitSide() OrderSide {
	if d == Short {
		return Buy
	}
	return Sell
}

// OrderSide represents the side of an exchange order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// TradeStatus represents the lifecycle status of a recorded trade.
type TradeStatus string

const (
	StatusOpen      TradeStatus = "open"
	StatusClosed    TradeStatus = "closed"
	StatusCancelled TradeStatus = "cancelled"
)
