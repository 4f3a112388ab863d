package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"querycost/pkg/config"
	"querycost/pkg/cost"
	"querycost/pkg/cost/memory"
	"querycost/pkg/cost/statistical"
	"querycost/pkg/engine"
	"querycost/pkg/feedback"
	"querycost/pkg/inspect"
	"querycost/pkg/logging"
	"querycost/pkg/plan"
	"querycost/pkg/pushdown"
	"querycost/pkg/query"
	"querycost/pkg/statistics"
	"querycost/pkg/types"

	"github.com/charmbracelet/lipgloss"
)

type Options struct {
	ConfigPath string
	DemoMode   bool
	Inspect    bool
}

func main() {
	opts := parseArguments()
	showSplashScreen()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.Init(cfg.LoggingConfig()); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	eng, store, err := buildEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	if opts.DemoMode {
		if err := runDemoMode(eng, store, cfg.Feedback.Keep); err != nil {
			log.Fatalf("Demo mode failed: %v", err)
		}
	}

	if opts.Inspect {
		if err := inspect.Run(eng); err != nil {
			log.Fatalf("Failed to start inspector: %v", err)
		}
	}
}

// parseArguments processes command-line flags
func parseArguments() Options {
	var opts Options

	flag.StringVar(&opts.ConfigPath, "config", "", "Configuration file path")
	flag.BoolVar(&opts.DemoMode, "demo", true, "Run the estimation demo")
	flag.BoolVar(&opts.Inspect, "inspect", false, "Launch the interactive inspector afterwards")

	flag.Parse()

	return opts
}

// showSplashScreen displays a welcome banner
func showSplashScreen() {
	splash := `
 ██████╗ ██╗   ██╗███████╗██████╗ ██╗   ██╗
██╔═══██╗██║   ██║██╔════╝██╔══██╗╚██╗ ██╔╝
██║   ██║██║   ██║█████╗  ██████╔╝ ╚████╔╝
██║▄▄ ██║██║   ██║██╔══╝  ██╔══██╗  ╚██╔╝
╚██████╔╝╚██████╔╝███████╗██║  ██║   ██║
 ╚══▀▀═╝  ╚═════╝ ╚══════╝╚═╝  ╚═╝   ╚═╝
          ██████╗ ██████╗ ███████╗████████╗
         ██╔════╝██╔═══██╗██╔════╝╚══██╔══╝
         ██║     ██║   ██║███████╗   ██║
         ██║     ██║   ██║╚════██║   ██║
         ╚██████╗╚██████╔╝███████║   ██║
          ╚═════╝ ╚═════╝ ╚══════╝   ╚═╝

        Cost-Based Query Estimation 🚀
`

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true)

	fmt.Println(style.Render(splash))
}

// buildEngine assembles the engine with both bundled models registered and,
// when enabled, warm-starts the statistical model from persisted weights.
func buildEngine(cfg *config.Config) (*engine.Engine, *feedback.Store, error) {
	catalog := statistics.NewCatalog()
	seedCatalog(catalog)

	eng := engine.New(cfg.EngineConfig(), catalog)

	statModel := statistical.New(catalog)
	if err := eng.RegisterModel("statistical", statModel); err != nil {
		return nil, nil, err
	}
	if err := eng.RegisterModel("memory", memory.NewWithConfig(catalog, cfg.MemoryModelConfig())); err != nil {
		return nil, nil, err
	}

	if !cfg.Feedback.Enabled {
		return eng, nil, nil
	}

	store, err := feedback.Open(cfg.Feedback.Path)
	if err != nil {
		return nil, nil, err
	}

	weights, err := store.LoadWeights("statistical")
	if err != nil {
		logging.Warn("failed to load persisted weights", "error", err)
	} else if len(weights) > 0 {
		statModel.SetWeights(weights)
		logging.Info("warm-started statistical model", "weights", len(weights))
	}

	return eng, store, nil
}

// seedCatalog installs sample collection statistics
func seedCatalog(c *statistics.Catalog) {
	c.Set("users", statistics.Entry{
		RowCount:   50_000,
		IndexType:  types.IndexFull,
		MemoryType: types.MemoryHigh,
		AvgRowSize: 180,
	})
	c.Set("orders", statistics.Entry{
		RowCount:   2_000_000,
		IndexType:  types.IndexPartial,
		MemoryType: types.MemoryMedium,
		AvgRowSize: 96,
	})
	c.Set("products", statistics.Entry{
		RowCount:   12_000,
		IndexType:  types.IndexFull,
		MemoryType: types.MemoryHigh,
		AvgRowSize: 240,
	})
	c.Set("events", statistics.Entry{
		RowCount:   25_000_000,
		IndexType:  types.IndexNone,
		MemoryType: types.MemoryLow,
		AvgRowSize: 320,
	})
}

var (
	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7C3AED")).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94A3B8"))
)

// runDemoMode walks the engine through estimation, comparison, pushdown and
// adaptive learning over the sample catalog.
func runDemoMode(eng *engine.Engine, store *feedback.Store, keep int) error {
	fmt.Println(sectionStyle.Render("🎮 Running estimation demo..."))
	fmt.Println()

	var events atomic.Int64
	eng.Subscribe(func(engine.Event) { events.Add(1) })

	if err := demoQueryEstimates(eng); err != nil {
		return err
	}
	if err := demoPlanEstimate(eng); err != nil {
		return err
	}
	if err := demoComparison(eng); err != nil {
		return err
	}
	demoMemoryModel(eng)
	demoPushdown(eng)
	if err := demoLearning(eng, store); err != nil {
		return err
	}

	if store != nil {
		persistFeedback(eng, store, keep)
	}

	fmt.Println(okStyle.Render(fmt.Sprintf("✅ Demo complete (%d engine events observed)", events.Load())))
	fmt.Println(dimStyle.Render("   Run with -inspect to browse the estimate history interactively"))
	fmt.Println()

	return nil
}

func demoQueryEstimates(eng *engine.Engine) error {
	fmt.Println(sectionStyle.Render("📊 Query estimates"))

	limit := int64(20)
	samples := []struct {
		name string
		q    *query.Query
		ctx  *cost.Context
	}{
		{
			name: "active users by signup date",
			q: &query.Query{
				Collection: "users",
				Filter:     map[string]any{"status": "active"},
				Sort:       "created_at",
			},
			ctx: &cost.Context{Collection: "users"},
		},
		{
			name: "order totals per customer",
			q: &query.Query{
				Collection: "orders",
				Join:       map[string]any{"collection": "users", "on": "user_id"},
				Aggregate:  map[string]any{"sum": "total"},
			},
			ctx: &cost.Context{Collection: "orders"},
		},
		{
			name: "product picker",
			q: &query.Query{
				Collection: "products",
				Select:     []string{"id", "name", "price"},
				Limit:      &limit,
			},
			ctx: &cost.Context{Collection: "products"},
		},
	}

	for _, s := range samples {
		est, err := eng.EstimateQueryCost(s.q, s.ctx, "")
		if err != nil {
			return fmt.Errorf("failed to estimate %q: %w", s.name, err)
		}
		fmt.Printf("  • %s\n%s\n", s.name, indent(engine.Explain(est), 4))
	}
	fmt.Println()

	return nil
}

func demoPlanEstimate(eng *engine.Engine) error {
	fmt.Println(sectionStyle.Render("🌳 Plan estimate"))

	p := demoPlan()
	est, err := eng.EstimatePlanCost(p, &cost.Context{Collection: "orders"}, "")
	if err != nil {
		return fmt.Errorf("failed to estimate plan: %w", err)
	}

	fmt.Println(indent(engine.Explain(est), 2))
	fmt.Println()
	return nil
}

func demoComparison(eng *engine.Engine) error {
	fmt.Println(sectionStyle.Render("⚖️  Model comparison"))

	q := &query.Query{
		Collection: "orders",
		Join:       map[string]any{"collection": "users", "on": "user_id"},
		Sort:       "total",
	}
	comparisons, err := eng.CompareModels(q, &cost.Context{Collection: "orders"})
	if err != nil {
		return fmt.Errorf("failed to compare models: %w", err)
	}

	for i, c := range comparisons {
		line := fmt.Sprintf("  %d. %-14s %12.2f", i+1, c.ModelName, c.TotalCost)
		if i == 0 {
			line = okStyle.Render(line + "  ◀ best")
		}
		fmt.Println(line)
	}
	fmt.Println()

	return nil
}

func demoMemoryModel(eng *engine.Engine) {
	m, err := eng.Model("memory")
	if err != nil {
		return
	}
	mm, ok := m.(*memory.Model)
	if !ok {
		return
	}

	fmt.Println(sectionStyle.Render("🧠 Memory model"))

	q := &query.Query{
		Collection: "events",
		Sort:       "timestamp",
		Group:      map[string]any{"by": "kind"},
	}
	ctx := &cost.Context{Collection: "events"}

	usage := mm.EstimateUsage(q, ctx)
	pressure := mm.EstimatePressure(ctx)

	fmt.Printf("  estimated usage: %s (%s)\n", formatBytes(usage.Total), usage.Level)
	fmt.Printf("  host pressure:   %s (ratio %.2f, cost ×%.1f)\n", pressure.Level, pressure.Ratio, pressure.Factor)
	fmt.Println()
}

// flatFileSource is a demo data source without capability reporting, so the
// strategy falls back to the default flat-projection capabilities.
type flatFileSource struct{}

func (flatFileSource) Name() string { return "users-flatfile" }

func demoPushdown(eng *engine.Engine) {
	fmt.Println(sectionStyle.Render("⤵️  Projection pushdown"))

	desc := &pushdown.Descriptor{
		Fields: []pushdown.Field{
			{Name: "id", Include: true},
			{Name: "name", Include: true},
			{Name: "email", Include: true},
			{Name: "status", Include: true},
			{Name: "created_at", Include: true},
			{Name: "description", Include: true},
			{Name: "profile", Include: true, Nested: &pushdown.Descriptor{
				Fields: []pushdown.Field{
					{Name: "avatar_url", Include: true},
					{Name: "bio", Include: true},
				},
			}},
		},
	}
	// The flat-file source carries no capability report, so cap the
	// projection explicitly: flat fields only, four at most.
	caps := pushdown.DefaultCapabilities()
	caps.MaxProjectionFields = 4
	ctx := &pushdown.Context{
		SupportsProjectionPushdown: true,
		DataSource:                 flatFileSource{},
		Capabilities:               &caps,
		Collection:                 "users",
	}

	strategy := pushdown.NewCostAwareStrategy(pushdown.DefaultAnalyzer(), eng, 1.0)
	pushed := strategy.Apply(desc, ctx)

	fmt.Printf("  requested fields: %s\n", strings.Join(desc.Names(), ", "))
	fmt.Printf("  pushed fields:    %s\n", strings.Join(pushed.Names(), ", "))
	fmt.Println()
}

func demoLearning(eng *engine.Engine, store *feedback.Store) error {
	fmt.Println(sectionStyle.Render("📚 Adaptive learning"))

	p := demoPlan()
	ctx := &cost.Context{Collection: "orders"}

	initial, err := eng.EstimatePlanCost(p, ctx, "statistical")
	if err != nil {
		return fmt.Errorf("failed to estimate plan: %w", err)
	}

	// Pretend execution consistently costs 40% more than estimated.
	actual := &cost.ActualMetrics{TotalCost: initial.TotalCost * 1.4}

	for round := 1; round <= 3; round++ {
		est, err := eng.EstimatePlanCost(p, ctx, "statistical")
		if err != nil {
			return fmt.Errorf("failed to estimate plan: %w", err)
		}

		applied := eng.UpdateModel(p, actual, ctx, "statistical")
		fmt.Printf("  round %d: estimated %.2f, observed %.2f, applied=%v\n",
			round, est.TotalCost, actual.TotalCost, applied)

		if store != nil {
			if err := store.Record("statistical", p, est, actual); err != nil {
				logging.Warn("failed to record observation", "error", err)
			}
		}
	}

	final, err := eng.EstimatePlanCost(p, ctx, "statistical")
	if err != nil {
		return fmt.Errorf("failed to estimate plan: %w", err)
	}
	fmt.Printf("  after learning: %.2f (target %.2f)\n\n", final.TotalCost, actual.TotalCost)

	return nil
}

// persistFeedback saves the learned weights and trims old observations.
func persistFeedback(eng *engine.Engine, store *feedback.Store, keep int) {
	m, err := eng.Model("statistical")
	if err != nil {
		return
	}
	sm, ok := m.(*statistical.Model)
	if !ok {
		return
	}

	if err := store.SaveWeights("statistical", sm.Weights()); err != nil {
		logging.Warn("failed to persist weights", "error", err)
	}
	if err := store.Prune(keep); err != nil {
		logging.Warn("failed to prune observations", "error", err)
	}
}

// demoPlan builds the plan tree used by the plan-estimate and learning demos.
func demoPlan() *plan.Node {
	return &plan.Node{
		Type: "project",
		Children: []*plan.Node{{
			Type: "sort",
			Children: []*plan.Node{{
				Type:     "join",
				RowCount: 120_000,
				Children: []*plan.Node{
					{Type: "scan", Collection: "orders", IndexType: types.IndexPartial},
					{Type: "scan", Collection: "users", IndexType: types.IndexFull, MemoryType: types.MemoryHigh},
				},
			}},
		}},
	}
}

// indent prefixes every line of s with n spaces.
func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = pad + line
	}
	return strings.Join(lines, "\n")
}

// formatBytes renders a byte count in a human unit.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
