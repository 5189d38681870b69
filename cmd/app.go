package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpHdlr "algomind/handler/http"
	"algomind/src/core/classifier"
	"algomind/src/core/embedding"
	"algomind/src/core/fusion"
	"algomind/src/core/graphquery"
	"algomind/src/core/knowledgebase"
	"algomind/src/core/reasoning"
	"algomind/src/core/similarity"
	"algomind/src/fsutil"
	"algomind/src/infrastructure/events"
	"algomind/src/infrastructure/integrations/einollm"
	"algomind/src/infrastructure/integrations/ollama"
	"algomind/src/log"
	"algomind/src/storage/minioctrl"
	"algomind/src/storage/neo4jctrl"
	"algomind/src/storage/postgres/sessionctrl"
	"algomind/src/storage/weaviate"
)

// app holds everything a command needs to run queries
type app struct {
	pipeline *reasoning.Pipeline
	table    *embedding.Table
	probes   map[string]httpHdlr.Probe
	closers  []func(context.Context) error

	// optional, nil when not configured
	events   *events.PubSub
	sessions *sessionctrl.SessionService
}

func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Error(err, "Failed to close dependency")
		}
	}
}

// newFileStore reads local paths directly and minio:// paths through MinIO
func newFileStore() (fsutil.FileStore, error) {
	router := minioctrl.Router{Local: fsutil.NewLocalFileStore()}
	if !minioctrl.IsURL(viper.GetString("embedding.path")) && !minioctrl.IsURL(viper.GetString("knowledge.path")) {
		return router, nil
	}

	svc, err := newMinioService()
	if err != nil {
		return nil, err
	}
	router.Objects = minioctrl.NewObjectStore(svc, viper.GetDuration("minio.timeout"))
	return router, nil
}

func newMinioService() (*minioctrl.MinioService, error) {
	svc, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio service: %w", err)
	}
	return svc, nil
}

// loadTable loads the embedding artifact. Any failure is fatal to the caller.
func loadTable(store fsutil.FileStore, progress io.Writer) (*embedding.Table, error) {
	path := viper.GetString("embedding.path")
	table, err := embedding.Shared(store, path, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding artifact %s: %w", path, err)
	}
	return table, nil
}

func newGenerator(ctx context.Context) (reasoning.Generator, httpHdlr.Probe, error) {
	provider := viper.GetString("llm.provider")
	switch provider {
	case "ollama":
		client := ollama.NewClient(viper.GetString("llm.base_url"), viper.GetString("llm.model"), &http.Client{}).
			WithOptions(ollamaOptions())
		log.Info("Using ollama", "url", viper.GetString("llm.base_url"), "model", client.Model())
		return client, client.Ping, nil
	case string(einollm.ProviderOpenAI), string(einollm.ProviderAnthropic):
		client, err := einollm.New(ctx, einollm.Config{
			Provider:  einollm.Provider(provider),
			Model:     viper.GetString("llm.model"),
			APIKey:    viper.GetString("llm.api_key"),
			BaseURL:   viper.GetString("llm.base_url"),
			MaxTokens: viper.GetInt("llm.max_tokens"),
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("Using hosted model", "provider", provider, "model", viper.GetString("llm.model"))
		return client, nil, nil
	case "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// ollamaOptions passes llm.options through to Ollama. llm.max_tokens becomes
// num_predict unless the options set it.
func ollamaOptions() map[string]interface{} {
	options := make(map[string]interface{})
	for k, v := range viper.GetStringMap("llm.options") {
		options[k] = v
	}
	if _, ok := options["num_predict"]; !ok {
		if n := viper.GetInt("llm.max_tokens"); n > 0 {
			options["num_predict"] = n
		}
	}
	return options
}

func openPostgres() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) func(context.Context) error {
	return func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}

// buildApp wires the pipeline from configuration. Only the embedding artifact is
// mandatory; every other dependency is optional.
func buildApp(ctx context.Context, withEvents bool) (*app, error) {
	a := &app{probes: map[string]httpHdlr.Probe{}}
	ok := false
	defer func() {
		if !ok {
			a.Close(ctx)
		}
	}()

	store, err := newFileStore()
	if err != nil {
		return nil, err
	}
	table, err := loadTable(store, nil)
	if err != nil {
		return nil, err
	}
	a.table = table

	catalog, err := knowledgebase.Load(store, viper.GetString("knowledge.path"))
	if err != nil {
		return nil, err
	}

	generator, probe, err := newGenerator(ctx)
	if err != nil {
		return nil, err
	}
	if probe != nil {
		a.probes["llm"] = probe
	}

	sources := &reasoning.Sources{Catalog: catalog}

	if uri := viper.GetString("neo4j.uri"); uri != "" {
		graph, err := neo4jctrl.NewGraphStore(uri,
			viper.GetString("neo4j.user"),
			viper.GetString("neo4j.password"),
			viper.GetString("neo4j.database"),
		)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, graph.Close)
		a.probes["neo4j"] = graph.Ping
		sources.Graph = graphquery.NewBuilder(graph, graphquery.Config{
			MaxLimit: viper.GetInt("graph.max_limit"),
			Timeout:  viper.GetDuration("graph.timeout"),
		})
	} else {
		log.Info("neo4j.uri is empty, answering without the knowledge graph")
	}

	var index similarity.Index
	if viper.GetString("embedding.index") == "weaviate" {
		sdk, err := weaviate.Dial(viper.GetString("weaviate.url"))
		if err != nil {
			return nil, err
		}
		a.probes["weaviate"] = sdk.Ping
		index = weaviate.NewNeighborIndex(sdk, viper.GetString("weaviate.class"), table)
	}
	sources.Similarity = similarity.NewRecommender(table, index, similarity.Config{
		Floor:   viper.GetFloat64("embedding.floor"),
		Timeout: viper.GetDuration("embedding.timeout"),
	})

	var sessions reasoning.SessionStore
	if viper.GetBool("postgres.enabled") {
		db, err := openPostgres()
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeDB(db))
		svc, err := sessionctrl.NewSessionService(db, viper.GetInt64("server.node_id"))
		if err != nil {
			return nil, err
		}
		if err := svc.Migrate(ctx); err != nil {
			return nil, err
		}
		sessions = svc
		a.sessions = svc
	}

	var observer reasoning.Observer
	if withEvents {
		ps, err := events.Open(viper.GetString("events.backend"), viper.GetString("amqp.url"), watermill.NewStdLogger(false, false))
		if err != nil {
			return nil, err
		}
		if ps != nil {
			a.events = ps
			a.closers = append(a.closers, func(context.Context) error { return ps.Close() })
			observer = events.NewPublisher(ps.Publisher)
		}
	}

	a.pipeline, err = reasoning.New(reasoning.Dependencies{
		Classifier: classifier.New(classifier.BuildLexicon(table, catalog), generator, viper.GetDuration("llm.classify_timeout")),
		Fusion: fusion.New(fusion.Config{
			MaxGraphNodes:          viper.GetInt("fusion.max_graph_nodes"),
			MaxRecommendationNodes: viper.GetInt("fusion.max_recommendation_nodes"),
			MaxExampleNodes:        viper.GetInt("fusion.max_example_nodes"),
			MaxPrincipleNodes:      viper.GetInt("fusion.max_principle_nodes"),
		}),
		Sources:   sources,
		Table:     table,
		Generator: generator,
		Sessions:  sessions,
		Observer:  observer,
	}, reasoning.Config{
		GraphDepth:        viper.GetInt("graph.default_depth"),
		GraphLimit:        viper.GetInt("graph.max_limit"),
		TopK:              viper.GetInt("embedding.top_k"),
		GenerationTimeout: viper.GetDuration("llm.timeout"),
		SessionTimeout:    viper.GetDuration("postgres.timeout"),
		ContextTurns:      viper.GetInt("postgres.context_turns"),
		NodeID:            viper.GetInt64("server.node_id"),
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}
