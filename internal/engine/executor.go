// Package engine executes parsed commands against a user's storage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jun/drivechat/internal/adapter"
	"github.com/jun/drivechat/internal/apperr"
	"github.com/jun/drivechat/internal/auth"
	"github.com/jun/drivechat/internal/command"
	"github.com/jun/drivechat/internal/extract"
	"github.com/jun/drivechat/internal/generate"
	"github.com/jun/drivechat/internal/pathres"
	"go.uber.org/zap"
)

// Authorizer starts the grant flow for SETUP.
type Authorizer interface {
	BeginAuthorization(ctx context.Context, identity string) (*auth.Grant, error)
}

// MediaFetcher opens an attachment delivered by the chat transport.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (body io.ReadCloser, contentType string, err error)
}

// Config bounds the executor's work.
type Config struct {
	// CharBudget caps the text submitted for summarization, in characters.
	CharBudget int
	// MaxDocuments caps how many eligible files SUMMARY reads.
	MaxDocuments int
	// Concurrency is the number of documents extracted at once.
	Concurrency int
	// SearchLimit caps how many folders RENAME visits.
	SearchLimit int
}

const (
	DefaultCharBudget   = 20000
	DefaultMaxDocuments = 50
	DefaultConcurrency  = 4
	DefaultSearchLimit  = 500
)

func (c Config) withDefaults() Config {
	if c.CharBudget <= 0 {
		c.CharBudget = DefaultCharBudget
	}
	if c.MaxDocuments <= 0 {
		c.MaxDocuments = DefaultMaxDocuments
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = DefaultSearchLimit
	}
	return c
}

// Executor runs one command per call. It holds no per-request state.
type Executor struct {
	resolver  *pathres.Resolver
	extractor *extract.Extractor
	gen       generate.Generator
	media     MediaFetcher
	auth      Authorizer
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

// NewExecutor wires an Executor.
func NewExecutor(resolver *pathres.Resolver, extractor *extract.Extractor, gen generate.Generator,
	media MediaFetcher, authorizer Authorizer, cfg Config, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		resolver:  resolver,
		extractor: extractor,
		gen:       gen,
		media:     media,
		auth:      authorizer,
		cfg:       cfg.withDefaults(),
		log:       log,
		now:       time.Now,
	}
}

// Setup runs SETUP. It needs no storage access.
func (e *Executor) Setup(ctx context.Context, identity string) (Result, error) {
	grant, err := e.auth.BeginAuthorization(ctx, identity)
	if err != nil {
		return nil, apperr.Wrap("setup", "", err)
	}
	return SetupResult{URL: grant.URL, AlreadyAuthorized: grant.AlreadyAuthorized, AccountEmail: grant.AccountEmail}, nil
}

// Execute runs cmd for identity against storage. Every failure is an
// *apperr.Error.
func (e *Executor) Execute(ctx context.Context, identity string, storage adapter.StorageAdapter, cmd command.Command) (Result, error) {
	switch c := cmd.(type) {
	case command.Setup:
		return e.Setup(ctx, identity)
	case command.List:
		return e.list(ctx, identity, storage, c)
	case command.Upload:
		return e.upload(ctx, identity, storage, c)
	case command.Rename:
		return e.rename(ctx, identity, storage, c)
	case command.Move:
		return e.move(ctx, identity, storage, c)
	case command.Delete:
		return e.delete(ctx, identity, storage, c)
	case command.Summary:
		return e.summarize(ctx, identity, storage, c)
	case command.Unrecognized:
		return UsageResult{Known: c.Known}, nil
	}
	return nil, apperr.New(apperr.KindInternal, "execute", "", fmt.Errorf("unhandled command %T", cmd))
}

func (e *Executor) list(ctx context.Context, identity string, storage adapter.StorageAdapter, c command.List) (Result, error) {
	const op = "list"
	folder, err := e.resolver.Resolve(ctx, identity, storage, c.Path)
	if err != nil {
		return nil, apperr.Wrap(op, c.Path, err)
	}
	children, err := storage.ListChildren(ctx, folder.ID())
	if err != nil {
		return nil, apperr.Wrap(op, c.Path, err)
	}

	res := ListResult{Path: folder.String()}
	for _, f := range children {
		if f.IsFolder() {
			res.Folders = append(res.Folders, f.Name)
		} else {
			res.Files = append(res.Files, f.Name)
		}
	}
	sortNames(res.Folders)
	sortNames(res.Files)
	return res, nil
}

// sortNames orders case-insensitively, falling back to byte order for ties.
func sortNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, b := strings.ToLower(names[i]), strings.ToLower(names[j])
		if a != b {
			return a < b
		}
		return names[i] < names[j]
	})
}

func (e *Executor) upload(ctx context.Context, identity string, storage adapter.StorageAdapter, c command.Upload) (Result, error) {
	const op = "upload"
	body, fetchedType, err := e.media.Fetch(ctx, c.Media.URL)
	if errors.Is(err, command.ErrMediaTooLarge) {
		return nil, apperr.New(apperr.KindParse, "fetch attachment", c.Name, err)
	}
	if err != nil {
		return nil, apperr.Wrap("fetch attachment", c.Name, err)
	}
	defer body.Close()

	folder, err := e.resolver.ResolveOrCreate(ctx, identity, storage, c.Path)
	if err != nil {
		return nil, apperr.Wrap(op, c.Path, err)
	}

	contentType := c.Media.ContentType
	if contentType == "" {
		contentType = fetchedType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	name := c.Name
	if name == "" {
		name = e.generatedName(contentType)
	}

	f, err := storage.Upload(ctx, name, contentType, body, folder.ID())
	if err != nil {
		return nil, apperr.Wrap(op, name, err)
	}
	e.log.Info("uploaded file", zap.String("identity", identity), zap.String("path", folder.String()), zap.String("file", f.Name))
	return UploadResult{Name: f.Name, Path: folder.String()}, nil
}

// generatedName names an upload that arrived without a caption.
func (e *Executor) generatedName(contentType string) string {
	ext := ""
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("upload-%s-%s%s", e.now().UTC().Format("20060102-150405"), uuid.NewString()[:8], ext)
}

func (e *Executor) rename(ctx context.Context, identity string, storage adapter.StorageAdapter, c command.Rename) (Result, error) {
	const op = "rename"
	f, err := e.findAnywhere(ctx, storage, c.OldName)
	if err != nil {
		return nil, apperr.Wrap(op, c.OldName, err)
	}
	if _, err := storage.Rename(ctx, f.ID, c.NewName); err != nil {
		return nil, apperr.Wrap(op, c.OldName, err)
	}
	// The file's folder is unknown without a reverse walk.
	e.resolver.InvalidateAll(identity)
	e.log.Info("renamed file", zap.String("identity", identity), zap.String("file", c.OldName))
	return RenameResult{OldName: c.OldName, NewName: c.NewName}, nil
}

// findInFolder returns the one file named name directly under folderID.
func findInFolder(ctx context.Context, storage adapter.StorageAdapter, op, folderID, name string) (*adapter.FileMetadata, error) {
	files, err := storage.FindFiles(ctx, folderID, name)
	if err != nil {
		return nil, apperr.Wrap(op, name, err)
	}
	switch len(files) {
	case 0:
		return nil, apperr.New(apperr.KindNotFound, op, name, adapter.ErrNotFound)
	case 1:
		return &files[0], nil
	}
	return nil, apperr.New(apperr.KindAmbiguous, op, name, fmt.Errorf("%d files named %q", len(files), name))
}

func (e *Executor) move(ctx context.Context, identity string, storage adapter.StorageAdapter, c command.Move) (Result, error) {
	const op = "move"
	src, err := e.resolver.Resolve(ctx, identity, storage, c.Source)
	if err != nil {
		return nil, apperr.Wrap(op, c.Source, err)
	}
	dest, err := e.resolver.Resolve(ctx, identity, storage, c.Dest)
	if err != nil {
		return nil, apperr.Wrap(op, c.Dest, err)
	}
	f, err := findInFolder(ctx, storage, op, src.ID(), c.File)
	if err != nil {
		return nil, err
	}
	if _, err := storage.Move(ctx, f.ID, src.ID(), dest.ID()); err != nil {
		return nil, apperr.Wrap(op, c.File, err)
	}
	e.resolver.Invalidate(identity, c.Source)
	e.resolver.Invalidate(identity, c.Dest)
	e.log.Info("moved file", zap.String("identity", identity), zap.String("file", c.File), zap.String("path", dest.String()))
	return MoveResult{File: c.File, Source: src.String(), Dest: dest.String()}, nil
}

func (e *Executor) delete(ctx context.Context, identity string, storage adapter.StorageAdapter, c command.Delete) (Result, error) {
	const op = "delete"
	folder, err := e.resolver.Resolve(ctx, identity, storage, c.Path)
	if err != nil {
		return nil, apperr.Wrap(op, c.Path, err)
	}
	f, err := findInFolder(ctx, storage, op, folder.ID(), c.File)
	if err != nil {
		return nil, err
	}
	if err := storage.Trash(ctx, f.ID); err != nil {
		return nil, apperr.Wrap(op, c.File, err)
	}
	e.resolver.Invalidate(identity, c.Path)
	e.log.Info("trashed file", zap.String("identity", identity), zap.String("path", folder.String()), zap.String("file", c.File))
	return DeleteResult{File: c.File, Path: folder.String()}, nil
}
