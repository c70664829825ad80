package network

import "time"

// EndpointStats tracks observed RTT for one RPC endpoint (a gas-oracle
// or price-oracle base URL) so a TokenBucket guarding it can back off
// when the endpoint degrades.
type EndpointStats struct {
	Endpoint  string
	MedianMs  float64
	UpdatedAt time.Time
}

// Monitor is the seam RTT observations are reported through; the
// oracle client times each outbound call and reports it here.
type Monitor struct {
	OnUpdate func(EndpointStats)
}

func (m *Monitor) Report(s EndpointStats) {
	if m.OnUpdate != nil {
		m.OnUpdate(s)
	}
}
