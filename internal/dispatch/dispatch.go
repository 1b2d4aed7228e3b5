// Package dispatch runs one inbound chat message through authorization,
// parsing, execution and reply composition.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jun/drivechat/internal/adapter"
	"github.com/jun/drivechat/internal/apperr"
	"github.com/jun/drivechat/internal/command"
	"github.com/jun/drivechat/internal/engine"
	"github.com/jun/drivechat/internal/reply"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Authorizer hands out credentials for an identity.
type Authorizer interface {
	EnsureAuthorized(ctx context.Context, identity string) (*oauth2.Token, error)
	ForceRefresh(ctx context.Context, identity string, rejected *oauth2.Token) (*oauth2.Token, error)
}

// Executor runs parsed commands.
type Executor interface {
	Setup(ctx context.Context, identity string) (engine.Result, error)
	Execute(ctx context.Context, identity string, storage adapter.StorageAdapter, cmd command.Command) (engine.Result, error)
}

// Inbound is one message from the chat transport.
type Inbound struct {
	Identity string
	Body     string
	Media    *command.Media
}

// Controller is safe for concurrent use; it keeps no per-identity state of
// its own.
type Controller struct {
	auth           Authorizer
	provider       adapter.StorageProvider
	exec           Executor
	composer       *reply.Composer
	storageTimeout time.Duration
	log            *zap.Logger
}

// New creates a Controller. storageTimeout bounds each storage call.
func New(auth Authorizer, provider adapter.StorageProvider, exec Executor, composer *reply.Composer,
	storageTimeout time.Duration, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		auth:           auth,
		provider:       provider,
		exec:           exec,
		composer:       composer,
		storageTimeout: storageTimeout,
		log:            log,
	}
}

// Handle always returns a reply. Failures, panics included, become the
// error template of their kind.
func (c *Controller) Handle(ctx context.Context, in Inbound) (msg reply.Message) {
	start := time.Now()
	keyword := "UNPARSED"
	log := c.log.With(zap.String("identity", in.Identity))

	defer func() {
		if r := recover(); r != nil {
			log.Error("command panicked", zap.String("command", keyword), zap.Any("panic", r), zap.Stack("stack"))
			msg = c.composer.Compose(nil, apperr.New(apperr.KindInternal, "dispatch", "", fmt.Errorf("panic: %v", r)))
		}
	}()

	res, err := c.run(ctx, in, &keyword)
	if err != nil {
		log.Info("command failed", zap.String("command", keyword), zap.Stringer("kind", apperr.KindOf(err)),
			zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return c.composer.Compose(nil, err)
	}
	log.Info("command handled", zap.String("command", keyword), zap.Duration("elapsed", time.Since(start)))
	return c.composer.Compose(res, nil)
}

func (c *Controller) run(ctx context.Context, in Inbound, keyword *string) (engine.Result, error) {
	cmd, parseErr := command.Parse(in.Body, in.Media)
	if parseErr == nil {
		*keyword = cmd.Keyword()
		if _, ok := cmd.(command.Setup); ok {
			return c.exec.Setup(ctx, in.Identity)
		}
	}

	// Everything but SETUP needs a connected Drive, even to report a
	// malformed command.
	tok, err := c.auth.EnsureAuthorized(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}

	res, err := c.execute(ctx, in.Identity, tok, cmd)
	if err == nil || !errors.Is(err, adapter.ErrUnauthenticated) {
		return res, err
	}

	// The provider rejected a credential we believed valid. Refresh once
	// and retry; a rejected request changed nothing.
	c.log.Info("storage rejected credential, refreshing", zap.String("identity", in.Identity))
	tok, err = c.auth.ForceRefresh(ctx, in.Identity, tok)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, in.Identity, tok, cmd)
}

func (c *Controller) execute(ctx context.Context, identity string, tok *oauth2.Token, cmd command.Command) (engine.Result, error) {
	storage, err := c.provider.GetAdapter(ctx, identity, tok)
	if err != nil {
		return nil, apperr.Wrap("open storage", "", err)
	}
	return c.exec.Execute(ctx, identity, adapter.WithTimeout(storage, c.storageTimeout), cmd)
}
