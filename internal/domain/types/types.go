// Package types contains the report types shared by the service and its
// transports.
package types

import (
	"time"

	"github.com/okian/dotrep/internal/domain/scoring"
)

// Report is the scored view of one wallet.
type Report struct {
	Address string `json:"address,omitempty"`
	Network string `json:"network,omitempty"`

	Score   int              `json:"score"`
	Tier    scoring.Tier     `json:"tier"`
	Raw     float64          `json:"raw"`
	Factors []scoring.Factor `json:"factors"`

	// Events lists the triggering events, newest first, in human-readable
	// form.
	Events      []string  `json:"events"`
	EventCount  int       `json:"event_count"`
	EvaluatedAt time.Time `json:"evaluated_at"`

	// RecentTransfers is set when the network's recent blocks were scanned.
	// It does not affect the score.
	RecentTransfers *RecentTransfers `json:"recent_transfers,omitempty"`
}

// RecentTransfers summarizes the balance transfers found in the latest blocks.
type RecentTransfers struct {
	BlocksScanned int `json:"blocks_scanned"`
	Count         int `json:"count"`

	// Events describes each transfer, newest first.
	Events []string `json:"events"`
}

// BatchItem is the outcome for one address of a batch request. Exactly one of
// Report and Error is set.
type BatchItem struct {
	Address string  `json:"address"`
	Report  *Report `json:"report,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// BatchReport is the response to a batch request. Results keep request order.
type BatchReport struct {
	Network   string      `json:"network"`
	Results   []BatchItem `json:"results"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// Add appends an item and updates the counters.
func (b *BatchReport) Add(item BatchItem) {
	b.Results = append(b.Results, item)
	if item.Error != "" {
		b.Failed++
		return
	}
	b.Succeeded++
}
