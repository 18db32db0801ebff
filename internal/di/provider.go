package di

import (
	"time"

	"github.com/bigfin/bigfind/internal/config"
	"github.com/bigfin/bigfind/internal/core/ledger"
	"github.com/bigfin/bigfind/internal/core/money"
	"github.com/bigfin/bigfind/internal/core/prefund"
	"github.com/bigfin/bigfind/internal/core/recon"
	"github.com/bigfin/bigfind/internal/core/routing"
	"github.com/bigfin/bigfind/internal/core/transfer"
	"github.com/bigfin/bigfind/internal/idempotency"
	"github.com/bigfin/bigfind/internal/provider"
	"github.com/bigfin/bigfind/internal/storage/keyValueDb"
	"github.com/bigfin/bigfind/internal/storage/keyValueDb/pebble"
	"github.com/bigfin/bigfind/internal/storage/memory"
	"github.com/bigfin/bigfind/internal/storage/relationaldb"
	"github.com/bigfin/bigfind/internal/storage/relationaldb/sqlstore"
)

// Provider configures and registers services in the container.
type Provider struct {
	container *Container
	config    *config.Config
}

// NewProvider creates a new service provider.
func NewProvider(container *Container, cfg *config.Config) *Provider {
	return &Provider{
		container: container,
		config:    cfg,
	}
}

// RegisterAll registers all services.
func (p *Provider) RegisterAll() error {
	// Register config
	p.container.Register(ServiceConfig, p.config)

	// Register builders for lazy instantiation
	p.registerStorageBuilders()
	p.registerEngineBuilders()

	return nil
}

// registerStorageBuilders registers storage service builders.
func (p *Provider) registerStorageBuilders() {
	// Repository manager builder. Standalone mode runs on the in-memory
	// store, otherwise the SQL-backed database. The CLI owns Open/Close.
	p.container.RegisterBuilder(ServiceRepositories, func(c *Container) (interface{}, error) {
		if p.config.Standalone {
			return memory.New(), nil
		}
		return sqlstore.NewDatabase(p.config.Database.ToStorage())
	})

	// Key/value store builder, backing the idempotency layer.
	p.container.RegisterBuilder(ServiceKeyValue, func(c *Container) (interface{}, error) {
		if p.config.Standalone || p.config.KeyValue.Path == "" {
			return keyValueDb.NewMemoryDB(), nil
		}
		return pebble.NewManager(p.config.KeyValue.Path).OpenDB("idempotency")
	})

	// Idempotency store builder
	p.container.RegisterBuilder(ServiceIdempotency, func(c *Container) (interface{}, error) {
		kv, err := c.Get(ServiceKeyValue)
		if err != nil {
			return nil, err
		}
		return idempotency.NewStore(kv.(keyValueDb.DB)), nil
	})
}

// registerEngineBuilders registers the domain engine builders.
func (p *Provider) registerEngineBuilders() {
	// Ledger engine builder
	p.container.RegisterBuilder(ServiceLedger, func(c *Container) (interface{}, error) {
		repos, err := p.repositories(c)
		if err != nil {
			return nil, err
		}
		return ledger.NewEngine(repos.Ledger()), nil
	})

	// Routing engine builder
	p.container.RegisterBuilder(ServiceRouting, func(c *Container) (interface{}, error) {
		var loc *time.Location
		if p.config.Routing.Timezone != "" {
			var err error
			loc, err = time.LoadLocation(p.config.Routing.Timezone)
			if err != nil {
				return nil, err
			}
		}
		return routing.NewEngine(routing.DefaultFeeSchedule(), routing.NewArrivalEstimator(loc)), nil
	})

	// Payment provider builder. The in-memory provider is the only
	// adapter; real provider integrations slot in here.
	p.container.RegisterBuilder(ServiceProvider, func(c *Container) (interface{}, error) {
		return provider.NewMemoryProvider(), nil
	})

	// Prefund service builder
	p.container.RegisterBuilder(ServicePrefund, func(c *Container) (interface{}, error) {
		repos, err := p.repositories(c)
		if err != nil {
			return nil, err
		}
		eng, err := c.Get(ServiceLedger)
		if err != nil {
			return nil, err
		}
		return prefund.NewService(repos.PrefundUnits(), eng.(*ledger.Engine)), nil
	})

	// Transfer orchestrator builder
	p.container.RegisterBuilder(ServiceOrchestrator, func(c *Container) (interface{}, error) {
		repos, err := p.repositories(c)
		if err != nil {
			return nil, err
		}
		eng, err := c.Get(ServiceLedger)
		if err != nil {
			return nil, err
		}
		router, err := c.Get(ServiceRouting)
		if err != nil {
			return nil, err
		}
		pp, err := c.Get(ServiceProvider)
		if err != nil {
			return nil, err
		}
		idem, err := c.Get(ServiceIdempotency)
		if err != nil {
			return nil, err
		}

		cfg := transfer.Config{
			PlatformAccountRef: p.config.Transfer.PlatformAccountRef,
			ProviderTimeout:    p.config.Provider.CallTimeout,
			Holds: transfer.HoldPolicy{
				Enabled:        p.config.Transfer.Holds.Enabled,
				ThresholdCents: money.Cents(p.config.Transfer.Holds.ThresholdCents),
				Duration:       p.config.Transfer.Holds.Duration,
			},
		}
		return transfer.NewOrchestrator(
			repos.TransferUnits(),
			eng.(*ledger.Engine),
			router.(*routing.Engine),
			pp.(provider.PaymentProvider),
			idem.(*idempotency.Store),
			cfg,
		), nil
	})

	// Reconciliation engine builder
	p.container.RegisterBuilder(ServiceRecon, func(c *Container) (interface{}, error) {
		repos, err := p.repositories(c)
		if err != nil {
			return nil, err
		}
		eng, err := c.Get(ServiceLedger)
		if err != nil {
			return nil, err
		}
		pp, err := c.Get(ServiceProvider)
		if err != nil {
			return nil, err
		}
		orch, err := c.Get(ServiceOrchestrator)
		if err != nil {
			return nil, err
		}

		cfg := recon.Config{
			DryRun:      p.config.Reconciliation.DryRun,
			AutoResolve: p.config.Reconciliation.AutoResolve,
			Window:      p.config.Reconciliation.Window,
		}
		return recon.NewEngine(
			repos.Recon(),
			repos.TransferUnits(),
			pp.(provider.PaymentProvider),
			eng.(*ledger.Engine),
			orch.(*transfer.Orchestrator),
			cfg,
		), nil
	})
}

// repositories resolves the repository manager.
func (p *Provider) repositories(c *Container) (relationaldb.RepositoryManager, error) {
	repos, err := c.Get(ServiceRepositories)
	if err != nil {
		return nil, err
	}
	return repos.(relationaldb.RepositoryManager), nil
}

// GetRepositories returns the repository manager from the container.
func (p *Provider) GetRepositories() (relationaldb.RepositoryManager, error) {
	return p.repositories(p.container)
}

// GetLedgerEngine returns the ledger engine from the container.
func (p *Provider) GetLedgerEngine() (*ledger.Engine, error) {
	eng, err := p.container.Get(ServiceLedger)
	if err != nil {
		return nil, err
	}
	return eng.(*ledger.Engine), nil
}

// GetPrefundService returns the prefund custody service from the container.
func (p *Provider) GetPrefundService() (*prefund.Service, error) {
	svc, err := p.container.Get(ServicePrefund)
	if err != nil {
		return nil, err
	}
	return svc.(*prefund.Service), nil
}

// GetRoutingEngine returns the routing engine from the container.
func (p *Provider) GetRoutingEngine() (*routing.Engine, error) {
	eng, err := p.container.Get(ServiceRouting)
	if err != nil {
		return nil, err
	}
	return eng.(*routing.Engine), nil
}

// GetOrchestrator returns the transfer orchestrator from the container.
func (p *Provider) GetOrchestrator() (*transfer.Orchestrator, error) {
	orch, err := p.container.Get(ServiceOrchestrator)
	if err != nil {
		return nil, err
	}
	return orch.(*transfer.Orchestrator), nil
}

// GetReconEngine returns the reconciliation engine from the container.
func (p *Provider) GetReconEngine() (*recon.Engine, error) {
	eng, err := p.container.Get(ServiceRecon)
	if err != nil {
		return nil, err
	}
	return eng.(*recon.Engine), nil
}

// GetPaymentProvider returns the payment provider from the container.
func (p *Provider) GetPaymentProvider() (provider.PaymentProvider, error) {
	pp, err := p.container.Get(ServiceProvider)
	if err != nil {
		return nil, err
	}
	return pp.(provider.PaymentProvider), nil
}

// GetIdempotencyStore returns the idempotency store from the container.
func (p *Provider) GetIdempotencyStore() (*idempotency.Store, error) {
	store, err := p.container.Get(ServiceIdempotency)
	if err != nil {
		return nil, err
	}
	return store.(*idempotency.Store), nil
}

// GetConfig returns the configuration from the container.
func (p *Provider) GetConfig() *config.Config {
	return p.config
}
