// Command flowworkd runs an autonomous worker agent against a FlowWork
// task marketplace: it discovers tasks through push events and counter
// polling, bids within policy bounds, and on assignment generates,
// publishes, and delivers the work.
//
// Run with a memory gateway for a self-contained marketplace, or point
// the bridge gateway at a NATS bus fronting the real ledger signer:
//
//	flowworkd -policy ~/.config/flowwork/policy.toml -archive /var/lib/flowworkd
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/flowwork/agent/archive"
	"github.com/flowwork/agent/bid"
	"github.com/flowwork/agent/bus"
	"github.com/flowwork/agent/credentials"
	"github.com/flowwork/agent/executor"
	"github.com/flowwork/agent/heartbeat"
	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/llm"
	"github.com/flowwork/agent/logging"
	"github.com/flowwork/agent/pipeline"
	"github.com/flowwork/agent/policy"
	"github.com/flowwork/agent/publish"
	"github.com/flowwork/agent/ratelimit"
	"github.com/flowwork/agent/reconcile"
	"github.com/flowwork/agent/shutdown"
	"github.com/flowwork/agent/track"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "flowworkd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		policyPath  = flag.String("policy", "", "path to policy.toml (defaults apply when empty)")
		archivePath = flag.String("archive", "", "directory for the delivery archive (in-memory when empty)")
		identity    = flag.String("identity", "", "override the agent identity from the policy file")
		logLevel    = flag.String("log-level", "info", "debug, info, warn, or error")
		stopTimeout = flag.Duration("stop-timeout", 30*time.Second, "graceful shutdown deadline")
	)
	flag.Parse()

	log := logging.New()
	log.SetLevel(logging.Level(strings.ToUpper(*logLevel)))

	pol, err := loadPolicy(*policyPath)
	if err != nil {
		return err
	}
	if *identity != "" {
		pol.Agent.Identity = *identity
	}
	if pol.Agent.Identity == "" {
		return fmt.Errorf("agent identity is required (policy [agent] identity or -identity)")
	}

	creds, credsPath, err := credentials.Load()
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	if credsPath != "" {
		log.Info("credentials loaded", map[string]interface{}{"path": credsPath})
	}

	// Message bus
	var b bus.MessageBus
	switch pol.Bus.Kind {
	case "nats":
		natsCfg := bus.DefaultNATSConfig()
		if pol.Bus.URL != "" {
			natsCfg.URL = pol.Bus.URL
		}
		natsCfg.Name = "flowworkd-" + pol.Agent.Identity
		b, err = bus.NewNATSBus(natsCfg)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
	default:
		b = bus.NewMemoryBus(bus.DefaultConfig())
	}

	// Ledger gateway
	var gw ledger.Gateway
	switch pol.Gateway.Kind {
	case "bridge":
		gw = ledger.NewBridgeGateway(b, ledger.BridgeConfig{RequestTimeout: pol.Gateway.RequestTimeout})
	default:
		gw = ledger.NewMemoryLedger(b, pol.Agent.Identity)
	}

	// LLM provider, shared by analysis and generation. Without a model
	// the agent still runs: heuristic analysis, no execution pipeline.
	var provider llm.Provider
	if pol.Agent.Model != "" {
		providerName := llm.InferProviderFromModel(pol.Agent.Model)
		provider, err = llm.NewProvider(llm.ProviderConfig{
			Provider: providerName,
			Model:    pol.Agent.Model,
			APIKey:   creds.GetAPIKey(providerName),
		})
		if err != nil {
			return fmt.Errorf("configuring llm provider: %w", err)
		}
	}

	limiter := ratelimit.NewMemoryLimiter()
	limiter.SetCapacity(executor.ResourceLLM, 30, time.Minute)

	analyzer := executor.NewAnalyzer(provider, limiter, log)

	// Content publishing: IPFS when configured, local hashes otherwise.
	var primary publish.Publisher
	if endpoint, token := creds.GetIPFS(); endpoint != "" {
		primary, err = publish.NewIPFSPublisher(publish.IPFSConfig{APIURL: endpoint, Token: token})
		if err != nil {
			return fmt.Errorf("configuring ipfs publisher: %w", err)
		}
	}
	publisher := publish.NewFallbackPublisher(primary, log)

	store := track.NewStore()
	guard := track.NewDedupGuard()

	var runner *pipeline.Runner
	if provider != nil {
		gen, err := executor.NewGenerator(executor.GeneratorConfig{Provider: provider, Limiter: limiter, Logger: log})
		if err != nil {
			return fmt.Errorf("configuring generator: %w", err)
		}
		runner, err = pipeline.NewRunner(pipeline.Config{
			Gateway:         gw,
			Generator:       gen,
			Publisher:       publisher,
			Guard:           guard,
			DeliveryRetries: pol.Engine.DeliveryRetries,
			Logger:          log,
		})
		if err != nil {
			return fmt.Errorf("configuring pipeline: %w", err)
		}
	} else if pol.Bidding.AutoExecute {
		log.Warn("no llm model configured, assignments will not be executed")
	}

	arch, err := archive.New(archive.Config{Path: *archivePath})
	if err != nil {
		return fmt.Errorf("opening delivery archive: %w", err)
	}

	rec, err := reconcile.New(reconcile.Config{
		Policy:   pol,
		Gateway:  gw,
		Store:    store,
		Guard:    guard,
		Analyzer: analyzer,
		Bidder:   bid.NewEngine(pol),
		Runner:   runner,
		Archive:  arch,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("configuring reconciler: %w", err)
	}

	hb, err := heartbeat.NewSender(heartbeat.SenderConfig{
		Bus:    b,
		Agent:  pol.Agent.Identity,
		Store:  store,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("configuring heartbeat: %w", err)
	}

	// Run the engine under a context cancelled by the intake stage.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := rec.Run(ctx); err != nil && err != context.Canceled {
			log.Error("reconciler stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	if err := hb.Start(ctx); err != nil {
		return fmt.Errorf("starting heartbeat: %w", err)
	}

	coord := shutdown.NewCoordinator(*stopTimeout, log)
	coord.Register("intake", shutdown.StageIntake, func(context.Context) error {
		cancel()
		return hb.Stop()
	})
	coord.Register("engine", shutdown.StageDrain, func(ctx context.Context) error {
		select {
		case <-engineDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	coord.Register("archive", shutdown.StageFlush, func(context.Context) error {
		return arch.Close()
	})
	coord.Register("bus", shutdown.StageTransport, func(context.Context) error {
		limiter.Close()
		return b.Close()
	})
	coord.HandleSignals()

	log.Info("flowworkd started", map[string]interface{}{
		"identity": pol.Agent.Identity,
		"bus":      pol.Bus.Kind,
		"gateway":  pol.Gateway.Kind,
		"model":    pol.Agent.Model,
	})

	<-coord.Done()
	return coord.Err()
}

func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy: %w", err)
	}
	pol, err := policy.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing policy %s: %w", path, err)
	}
	return pol, nil
}
