package audit

// Auditor records calculations performed by the service.
type Auditor interface {
	// Record queues one audit entry and never blocks the caller.
	//
	// Parameters:
	//   operation: what was calculated. The server uses
	//     - "greeks", "greeks_batch" - pricing requests
	//     - "implied_vol" - implied volatility inversions
	//     - "surface_slice", "surface_fit" - surface mutations
	//     - "chain" - option chain analysis
	//   symbol: underlying symbol, empty when the request carries none
	//   data: request and result, serialized as JSON
	//
	// Returns ErrJournalFull when the buffer is full and ErrJournalClosed
	// after Close. In both cases the entry is dropped.
	Record(operation, symbol string, data interface{}) error

	// Archive moves the current journal file aside and starts a new one.
	Archive() error
}

// Discard is an Auditor that drops every entry
var Discard Auditor = discard{}

type discard struct{}

func (discard) Record(string, string, interface{}) error { return nil }
func (discard) Archive() error                           { return nil }
