// Package plans holds the static subscription plan catalog. Pricing is fixed
// at build time and decoupled from anything a client can send.
package plans

// Plan describes one subscription product. Amounts are integers in the
// smallest currency unit; no floating point anywhere on the billing surface.
type Plan struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	IntervalDays int    `json:"interval_days"`
	TrialDays    int    `json:"trial_days"`
}

var catalog = map[string]Plan{
	"premium_monthly": {
		ID:           "premium_monthly",
		Name:         "Premium Monthly",
		Amount:       399,
		Currency:     "XAF",
		IntervalDays: 30,
		TrialDays:    7,
	},
}

// Get returns the plan with the given id.
func Get(id string) (Plan, bool) {
	p, ok := catalog[id]
	return p, ok
}

// All returns every plan in the catalog.
func All() []Plan {
	out := make([]Plan, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p)
	}
	return out
}
