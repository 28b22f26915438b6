// Package fixture serves wallet activity from a YAML file. It backs local
// runs and demos where no indexer is available.
//
// The file maps SS58 addresses to snapshots in the wire format:
//
//	wallets:
//	  5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY:
//	    acala:
//	      loanRepaid:
//	        - timestamp: "2025-08-01T00:00:00Z"
//	    generic:
//	      walletCreationDate: "2022-01-01T00:00:00Z"
//	      transactionCountLastMonth: 40
//
// Wallets are indexed by account, so any network encoding of the same key
// resolves to the same snapshot.
package fixture

import (
	"context"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/dotrep/internal/adapters/chain"
	"github.com/okian/dotrep/internal/domain/address"
	"github.com/okian/dotrep/internal/domain/model"
)

const sourceName = "fixture"

// Provider is an in-memory chain.Provider. It is read-only after Load and safe
// for concurrent use.
type Provider struct {
	wallets map[address.AccountID]model.WalletActivity
}

var _ chain.Provider = (*Provider)(nil)

// Load reads and decodes the fixture file at path.
func Load(path string) (*Provider, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load fixtures %s: %w", path, err)
	}

	raw := map[string]model.WalletActivity{}
	conf := koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
			Result:           &raw,
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("wallets", &raw, conf); err != nil {
		return nil, fmt.Errorf("decode fixtures %s: %w", path, err)
	}

	p := &Provider{wallets: make(map[address.AccountID]model.WalletActivity, len(raw))}
	for addr, activity := range raw {
		id, _, err := address.Decode(addr)
		if err != nil {
			return nil, fmt.Errorf("fixture wallet %q: %w", addr, err)
		}
		p.wallets[id] = activity
	}
	return p, nil
}

// New builds a provider from snapshots already keyed by account.
func New(wallets map[address.AccountID]model.WalletActivity) *Provider {
	p := &Provider{wallets: make(map[address.AccountID]model.WalletActivity, len(wallets))}
	for id, a := range wallets {
		p.wallets[id] = a
	}
	return p
}

// Name implements chain.Provider.
func (p *Provider) Name() string { return sourceName }

// Len returns the number of wallets loaded.
func (p *Provider) Len() int { return len(p.wallets) }

// Activity returns the snapshot of addr. The network is not consulted since
// fixtures are keyed by account.
func (p *Provider) Activity(_ context.Context, addr, _ string) (model.WalletActivity, error) {
	id, _, err := address.Decode(addr)
	if err != nil {
		return model.WalletActivity{}, err
	}
	a, ok := p.wallets[id]
	if !ok {
		return model.WalletActivity{}, fmt.Errorf("%w: %s", chain.ErrWalletNotFound, addr)
	}
	return a, nil
}
