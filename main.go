package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/agents/orchestrator"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/agents/specialist"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/auditlog"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	llmx "github.com/tanpawarit/Chative-Ecom-Support/agent/llm"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
	"github.com/tanpawarit/Chative-Ecom-Support/api"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/auth"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/backend"
	configx "github.com/tanpawarit/Chative-Ecom-Support/pkg/config"
	_ "github.com/tanpawarit/Chative-Ecom-Support/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/Chative-Ecom-Support/pkg/openrouter"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/paramstore"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/profile"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/vectorsearch"
)

type AppConfig struct {
	AppName        string        `envconfig:"APP_NAME" default:"Host_Agent"`
	DBURL          string        `envconfig:"DB_URL"`
	LogDir         string        `envconfig:"LOG_DIR" default:"logs"`
	HistoryLength  int           `envconfig:"HISTORY_LENGTH" default:"15"`
	SecretKey      string        `envconfig:"SECRET_KEY"`
	SecretKeyParam string        `envconfig:"SECRET_KEY_PARAM"`
	HTTPAddr       string        `envconfig:"HTTP_ADDR" default:":8080"`
	APIPrefix      string        `envconfig:"API_PREFIX" default:"/api"`
	ShutdownWait   time.Duration `envconfig:"SHUTDOWN_WAIT" default:"15s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	storeCfg := configx.MustNew[statex.Config]("STORE")
	backendCfg := configx.MustNew[backend.Config]("BACKEND")
	vectorCfg := configx.MustNew[vectorsearch.Config]("VECTOR")
	profileCfg := configx.MustNew[profile.Config]("PROFILE")
	auditCfg := configx.MustNew[auditlog.Config]("AUDIT")

	awsLoader := newAWSLoader()

	secret, err := resolveSecret(ctx, appCfg, awsLoader)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve token secret")
	}
	verifier, err := auth.NewVerifier(secret)
	if err != nil {
		log.Fatal().Err(err).Msg("token verifier")
	}

	store, err := statex.NewStore(ctx, *storeCfg, appCfg.DBURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", storeCfg.Driver).Msg("state store")
	}
	defer store.Close()

	backends, err := backend.NewClients(*backendCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("backend clients")
	}

	var embedder vectorsearch.Embedder
	if strings.EqualFold(vectorCfg.Driver, vectorsearch.DriverQdrant) {
		e, err := openrouterx.NewEmbedder(llmCfg.ModelFor(contractx.AgentTypeRetrieval), vectorCfg.EmbeddingModel)
		if err != nil {
			log.Fatal().Err(err).Msg("embedder")
		}
		embedder = e
	}
	searcher, err := vectorsearch.New(*vectorCfg, embedder)
	if err != nil {
		log.Fatal().Err(err).Str("driver", vectorCfg.Driver).Msg("vector search")
	}
	defer searcher.Close()

	profiles, err := profile.New(*profileCfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", profileCfg.Driver).Msg("profile lookup")
	}

	audit := auditlog.New(*auditCfg, auditSinks(ctx, appCfg.LogDir, auditCfg, awsLoader)...)
	defer func() {
		if err := audit.Close(); err != nil {
			log.Error().Err(err).Msg("close interaction log")
		}
	}()

	registry, err := specialist.NewRegistry(ctx, *llmCfg, specialist.Deps{
		Backends:      backends,
		Searcher:      searcher,
		HistoryLength: appCfg.HistoryLength,
		Retrieval: specialist.RetrievalOptions{
			TopK:     vectorCfg.TopK,
			MinScore: vectorCfg.MinScore,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("specialist registry")
	}

	chatModel, err := openrouterx.NewChatModel(ctx, llmCfg.ModelFor(contractx.AgentTypeOrchestrator))
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator model")
	}
	engine, err := orchestrator.New(ctx, store, registry, chatModel, audit, orchestrator.Config{
		App:           appCfg.AppName,
		HistoryLength: appCfg.HistoryLength,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator")
	}

	handler := api.NewHandler(engine, verifier, profiles, appCfg.AppName)
	server := &http.Server{
		Addr:              appCfg.HTTPAddr,
		Handler:           api.NewRouter(handler, appCfg.APIPrefix),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", appCfg.HTTPAddr).Str("app", appCfg.AppName).Msg("support agent listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownWait)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("support agent stopped")
}

// awsLoader loads the default AWS config on first use.
type awsLoader struct {
	cfg    *aws.Config
	loaded bool
	err    error
}

func newAWSLoader() *awsLoader {
	return &awsLoader{}
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	if !l.loaded {
		l.loaded = true
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			l.err = err
		} else {
			l.cfg = &cfg
		}
	}
	if l.err != nil {
		return aws.Config{}, l.err
	}
	return *l.cfg, nil
}

func resolveSecret(ctx context.Context, cfg *AppConfig, loader *awsLoader) (string, error) {
	var getter paramstore.Getter
	if strings.TrimSpace(cfg.SecretKey) == "" && strings.TrimSpace(cfg.SecretKeyParam) != "" {
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return "", err
		}
		client, err := paramstore.New(ssm.NewFromConfig(awsCfg))
		if err != nil {
			return "", err
		}
		getter = client
	}
	return paramstore.Resolve(ctx, getter, cfg.SecretKey, cfg.SecretKeyParam)
}

// auditSinks skips any sink that cannot be opened; interaction logging never
// blocks startup.
func auditSinks(ctx context.Context, dir string, cfg *auditlog.Config, loader *awsLoader) []auditlog.Sink {
	var sinks []auditlog.Sink
	if cfg.JSONL {
		if s, err := auditlog.NewJSONLSink(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("jsonl interaction log disabled")
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.CSV {
		if s, err := auditlog.NewCSVSink(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("csv interaction log disabled")
		} else {
			sinks = append(sinks, s)
		}
	}
	if table := strings.TrimSpace(cfg.DynamoTable); table != "" {
		awsCfg, err := loader.load(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("dynamodb interaction log disabled")
			return sinks
		}
		s, err := auditlog.NewDynamoSink(dynamodb.NewFromConfig(awsCfg), table, cfg.DynamoTTL)
		if err != nil {
			log.Warn().Err(err).Str("table", table).Msg("dynamodb interaction log disabled")
			return sinks
		}
		sinks = append(sinks, s)
	}
	return sinks
}
