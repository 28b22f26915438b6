package service

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/okian/dotrep/internal/adapters/chain"
	"github.com/okian/dotrep/internal/domain/model"
	"github.com/okian/dotrep/internal/domain/scoring"
	"github.com/okian/dotrep/internal/domain/types"
)

// describeEvents renders every categorized event, newest first, e.g.
//
//	acala.loanRepaid at 2025-08-01T00:00:00Z, value 2, decay 1.00
func describeEvents(engine *scoring.Engine, activity *model.WalletActivity, now time.Time) []string {
	type entry struct {
		at   time.Time
		text string
	}

	var entries []entry
	for _, c := range model.Categories() {
		for _, ev := range activity.Events(c) {
			text := c.WireName() + " at " + ev.Timestamp.UTC().Format(time.RFC3339)
			if ev.Magnitude() != 1 {
				text += ", value " + strconv.FormatFloat(ev.Magnitude(), 'f', -1, 64)
			}
			text += fmt.Sprintf(", decay %.2f", engine.Decay(ev.Timestamp, now))
			entries = append(entries, entry{at: ev.Timestamp, text: text})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].at.After(entries[j].at)
	})

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.text
	}
	return out
}

// describeTransfers renders a scan, e.g.
//
//	balances.Transfer received in block #21500000, amount 10000000000
func describeTransfers(scan chain.TransferScan) *types.RecentTransfers {
	out := &types.RecentTransfers{
		BlocksScanned: scan.Blocks,
		Count:         len(scan.Transfers),
		Events:        make([]string, len(scan.Transfers)),
	}
	for i, t := range scan.Transfers {
		out.Events[i] = fmt.Sprintf("balances.Transfer %s in block #%d, amount %s", t.Direction, t.Block, t.Amount)
	}
	return out
}
