package domain

// RiskLimits are the engine-wide trading limits. MaxDrawdown is a floor:
// zero or negative, in account currency.
type RiskLimits struct {
	MaxPositionPerSymbol float64 `json:"maxPositionPerSymbol"`
	MaxDrawdown          float64 `json:"maxDrawdown"`
}
