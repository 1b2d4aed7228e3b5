package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"github.com/jun/drivechat/internal/adapter"
	"github.com/jun/drivechat/internal/adapter/googledrive"
	"github.com/jun/drivechat/internal/adapter/memory"
	"github.com/jun/drivechat/internal/auth"
	"github.com/jun/drivechat/internal/chat"
	"github.com/jun/drivechat/internal/config"
	"github.com/jun/drivechat/internal/crypto"
	"github.com/jun/drivechat/internal/dispatch"
	"github.com/jun/drivechat/internal/engine"
	"github.com/jun/drivechat/internal/extract"
	"github.com/jun/drivechat/internal/generate"
	"github.com/jun/drivechat/internal/handler"
	"github.com/jun/drivechat/internal/lease"
	"github.com/jun/drivechat/internal/markdown"
	"github.com/jun/drivechat/internal/pathres"
	"github.com/jun/drivechat/internal/reply"
	"github.com/jun/drivechat/internal/secret"
	"github.com/jun/drivechat/internal/store"
)

// devStateSecret signs grant state in dev mode when no secret is set.
const devStateSecret = "drivechat-dev-state-secret"

// App holds the dependencies for the Lambda function and the local server.
type App struct {
	Auth *auth.Manager

	webhookHandler  *handler.WebhookHandler
	callbackHandler *handler.CallbackHandler
	closers         []func() error
	log             *zap.Logger
}

// NewApp initializes the application dependencies from cfg.
func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{log: log}

	// AWS is only needed outside dev mode or for a DynamoDB token table.
	var awsCfg aws.Config
	if !cfg.DevMode || cfg.Store.Backend == config.BackendDynamoDB {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load SDK config: %w", err)
		}
	}

	// ---------- Secrets ----------
	var source secret.Resolver
	if cfg.DevMode {
		source = secret.NewEnvResolver()
		log.Info("using EnvResolver (dev mode)")
	} else {
		source = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
	}
	resolver := secret.NewCachedResolver(source)
	if err := resolver.Prefetch(ctx,
		cfg.Google.ClientSecretParam,
		cfg.Secrets.StateSecretParam,
		cfg.Twilio.AuthTokenParam,
		cfg.Generation.APIKeyParam,
	); err != nil {
		log.Warn("secret prefetch failed, resolving one by one", zap.Error(err))
	}

	googleClientSecret, err := resolver.GetSecret(ctx, cfg.Google.ClientSecretParam)
	if err != nil {
		if !cfg.DevMode {
			return nil, fmt.Errorf("google client secret: %w", err)
		}
		log.Warn("google client secret not set, SETUP links will not complete", zap.Error(err))
	}
	stateSecret, err := resolver.GetSecret(ctx, cfg.Secrets.StateSecretParam)
	if err != nil {
		if !cfg.DevMode {
			return nil, fmt.Errorf("state secret: %w", err)
		}
		stateSecret = devStateSecret
	}
	twilioToken, err := resolver.GetSecret(ctx, cfg.Twilio.AuthTokenParam)
	if err != nil && !cfg.DevMode {
		return nil, fmt.Errorf("twilio auth token: %w", err)
	}

	// ---------- Credentials at rest ----------
	var enc crypto.Encryptor
	if cfg.DevMode {
		enc = crypto.NewMockEncryptor()
		log.Info("using MockEncryptor (dev mode)")
	} else {
		enc = crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.Store.KMSKeyID)
	}

	var st store.Store
	var locker lease.Locker
	switch cfg.Store.Backend {
	case config.BackendDynamoDB:
		client := dynamodb.NewFromConfig(awsCfg)
		st = store.NewDynamoStore(client, cfg.Store.Table)
		if cfg.Store.LeaseTable != "" {
			locker = lease.NewDynamoLocker(client, cfg.Store.LeaseTable, cfg.Auth.LeaseTTL)
		}
	case config.BackendSQLite:
		sq, err := store.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sq.Close)
		st = sq
	default:
		st = store.NewMemoryStore()
	}
	if locker == nil {
		locker = lease.NewMemoryLocker()
	}
	log.Info("token store ready", zap.String("backend", cfg.Store.Backend))

	oauth := auth.NewGoogleOAuth(cfg.Google.ClientID, googleClientSecret, cfg.RedirectURL())
	a.Auth = auth.NewManager(oauth, st, enc, []byte(stateSecret), auth.Options{
		Skew:      cfg.Auth.RefreshSkew,
		Timeout:   cfg.Auth.Timeout,
		StateTTL:  cfg.Auth.StateTTL,
		LeaseWait: cfg.Auth.LeaseWait,
		Locker:    locker,
		Logger:    log.Named("auth"),
	})

	// ---------- Storage provider ----------
	var provider adapter.StorageProvider
	if cfg.DevMode {
		provider = memory.NewProvider()
		log.Info("using MemoryProvider (dev mode)")
	} else {
		provider = googledrive.NewProvider()
	}

	// ---------- Generation ----------
	var gen generate.Generator = generate.Unconfigured{}
	if key, err := resolver.GetSecret(ctx, cfg.Generation.APIKeyParam); err == nil && key != "" {
		client, err := generate.NewGenAIClient(ctx, key, cfg.Generation.Model, cfg.Generation.Timeout, log.Named("generate"))
		if err != nil {
			return nil, err
		}
		gen = client
	} else {
		log.Warn("no generation API key, SUMMARY will report a generation failure")
	}

	// ---------- Chat transport ----------
	var sender chat.Sender
	if cfg.DevMode || cfg.Twilio.AccountSID == "" {
		sender = chat.NewLogSender(log.Named("chat"))
	} else {
		sender = chat.NewTwilioSender(cfg.Twilio.AccountSID, twilioToken, cfg.Twilio.From, log.Named("chat"))
	}
	var validator *chat.SignatureValidator
	if cfg.Twilio.ValidateSignature {
		validator = chat.NewSignatureValidator(twilioToken)
	}
	fetcher := chat.NewHTTPMediaFetcher(cfg.Twilio.AccountSID, twilioToken, cfg.Drive.Timeout, cfg.Drive.MaxMediaBytes)

	// ---------- Command pipeline ----------
	exec := engine.NewExecutor(
		pathres.New(cfg.Drive.FolderCacheTTL, log.Named("pathres")),
		extract.New(markdown.NewRenderer(), cfg.Summary.MaxFileBytes),
		gen,
		fetcher,
		a.Auth,
		engine.Config{
			CharBudget:   cfg.Summary.CharBudget,
			MaxDocuments: cfg.Summary.MaxDocuments,
			Concurrency:  cfg.Summary.Concurrency,
			SearchLimit:  cfg.Drive.SearchLimit,
		},
		log.Named("engine"),
	)
	controller := dispatch.New(a.Auth, provider, exec, reply.NewComposer(cfg.Reply.ChunkLimit), cfg.Drive.Timeout, log.Named("dispatch"))

	a.webhookHandler = handler.NewWebhookHandler(controller, sender, validator, cfg.WebhookURL(), log.Named("webhook"))
	a.callbackHandler = handler.NewCallbackHandler(a.Auth, sender, log.Named("callback"))
	return a, nil
}

// Close releases resources such as the SQLite handle.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (a *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod

	// Strip /api prefix if present (for CloudFront proxying)
	path = strings.TrimPrefix(path, "/api")

	a.log.Debug("request", zap.String("method", method), zap.String("path", path))

	switch {
	case path == "/whatsapp/message" && method == http.MethodPost:
		return a.must(a.webhookHandler.Message(ctx, req)), nil
	case path == "/oauth/callback" && method == http.MethodGet:
		return a.must(a.callbackHandler.Callback(ctx, req)), nil
	case path == "/health" && method == http.MethodGet:
		return handler.Health(), nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}, nil
}

// must unwraps a handler response, logging the error.
func (a *App) must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		a.log.Error("handler error", zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
