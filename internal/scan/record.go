package scan

// Direction is the side of a transaction the queried address is on.
type Direction string

const (
	Sent     Direction = "sent"
	Received Direction = "received"
)

// Status is a transaction's confirmation state.
type Status string

const (
	Pending   Status = "pending"
	Confirmed Status = "confirmed"
	Failed    Status = "failed"
)

// Record is a transaction touching the queried address, normalised across chains.
// Records are values and are never mutated after a scan produces them.
type Record struct {
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       string    `json:"value"` // smallest native unit, base 10
	Direction   Direction `json:"direction"`
	Status      Status    `json:"status"`
	ChainID     int64     `json:"chain_id"`
	ChainName   string    `json:"chain_name"`
	BlockNumber *uint64   `json:"block_number,omitempty"`
	GasUsed     *uint64   `json:"gas_used,omitempty"`
	GasPrice    *string   `json:"gas_price,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}

// Clone returns a copy of records that shares no pointers with the input.
func Clone(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		if r.BlockNumber != nil {
			v := *r.BlockNumber
			r.BlockNumber = &v
		}
		if r.GasUsed != nil {
			v := *r.GasUsed
			r.GasUsed = &v
		}
		if r.GasPrice != nil {
			v := *r.GasPrice
			r.GasPrice = &v
		}
		out[i] = r
	}
	return out
}
