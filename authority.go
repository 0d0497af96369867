package gidref

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/hupe1980/gidref/agas"
	"github.com/hupe1980/gidref/agas/ddb"
	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
)

// Credit store backends.
const (
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
)

// AuthorityConfig describes the address and lifetime authority.
type AuthorityConfig struct {
	// InitialCreditLog2 is the exponent of the credit of new components.
	// 0 selects gid.DefaultInitialLog2.
	InitialCreditLog2 uint8 `toml:"initial_credit_log2"`

	// Store selects the credit table backend: "memory" (default) or
	// "dynamodb".
	Store string `toml:"store"`

	// Table is the DynamoDB table name.
	Table string `toml:"table"`

	// Region overrides the AWS region of the DynamoDB client.
	Region string `toml:"region"`
}

// NewAuthority creates the authority shared by all localities of one
// application.
func NewAuthority(ctx context.Context, cfg AuthorityConfig, logger *Logger) (*agas.Service, error) {
	if logger == nil {
		logger = NoopLogger()
	}

	log2 := cfg.InitialCreditLog2
	if log2 == 0 {
		log2 = gid.DefaultInitialLog2
	}
	if log2 > gid.MaxLog2Credit {
		return nil, core.NewError(core.ErrBadParameter, "gidref.NewAuthority", fmt.Sprintf("initial credit log2 %d too large", log2))
	}

	var store agas.CreditStore
	switch cfg.Store {
	case "", StoreMemory:
		store = agas.NewMemoryStore()
	case StoreDynamoDB:
		if cfg.Table == "" {
			return nil, core.NewError(core.ErrBadParameter, "gidref.NewAuthority", "dynamodb store needs a table")
		}
		var loadOpts []func(*config.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
		}
		s, err := ddb.NewCreditStoreFromDefaultConfig(ctx, cfg.Table, loadOpts...)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, core.NewError(core.ErrBadParameter, "gidref.NewAuthority", fmt.Sprintf("unknown credit store %q", cfg.Store))
	}

	return agas.NewService(func(o *agas.ServiceOptions) {
		o.InitialCredit = int64(1) << log2
		o.Store = store
		o.Logger = logger.Logger
	})
}
