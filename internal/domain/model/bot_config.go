package model

// BotConfig is the persisted runtime configuration of one bot instance.
// It is owned by the credential store and mutated only through validated
// router operations.
type BotConfig struct {
	Token           string `json:"token"`
	OperatorID      int64  `json:"operator_id"`
	IntervalSeconds int    `json:"interval_seconds"`
	Running         bool   `json:"running"`
}

// HasOperator reports whether an operator identity has been assigned.
func (c BotConfig) HasOperator() bool {
	return c.OperatorID != 0
}
