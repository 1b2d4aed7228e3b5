package engine

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/jun/drivechat/internal/adapter"
	"github.com/jun/drivechat/internal/apperr"
	"github.com/jun/drivechat/internal/command"
	"github.com/jun/drivechat/internal/extract"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const summaryInstruction = "Analyze the following document texts and provide a concise, professional summary " +
	"highlighting the key themes, main findings, or important takeaways. " +
	"Do not exceed 300 words. Source Files: "

// separator marks the start of one document in the aggregated text.
func separator(name string) string {
	return "\n\n=== " + name + " ===\n"
}

type extraction struct {
	file adapter.FileMetadata
	doc  *extract.Document
	err  error
}

// summarize runs Resolve, Enumerate, Extract, Aggregate, Generate and
// Report in that order.
func (e *Executor) summarize(ctx context.Context, identity string, storage adapter.StorageAdapter, c command.Summary) (Result, error) {
	const op = "summary"
	log := e.log.With(zap.String("identity", identity), zap.String("path", c.Path))

	folder, err := e.resolver.Resolve(ctx, identity, storage, c.Path)
	if err != nil {
		return nil, apperr.Wrap(op, c.Path, err)
	}
	children, err := storage.ListChildren(ctx, folder.ID())
	if err != nil {
		return nil, apperr.Wrap(op, c.Path, err)
	}

	res := SummaryResult{Path: folder.String()}

	var eligible []adapter.FileMetadata
	for _, f := range children {
		if f.IsFolder() {
			continue
		}
		if _, ok := extract.Classify(f); !ok {
			continue
		}
		if len(eligible) == e.cfg.MaxDocuments {
			res.Skipped = append(res.Skipped, f.Name)
			continue
		}
		eligible = append(eligible, f)
	}

	results := e.extractAll(ctx, storage, eligible)

	var (
		b     strings.Builder
		used  int
		names []string
	)
	for _, r := range results {
		if r.err != nil {
			log.Warn("skipping document", zap.String("file", r.file.Name), zap.Error(r.err))
			res.Skipped = append(res.Skipped, r.file.Name)
			continue
		}
		if r.doc.Text == "" {
			res.Skipped = append(res.Skipped, r.file.Name)
			continue
		}
		if res.Truncated {
			continue
		}

		section := separator(r.doc.Name) + r.doc.Text
		n := utf8.RuneCountInString(section)
		if used+n > e.cfg.CharBudget {
			res.Truncated = true
			if used > 0 {
				// Stop at the previous document boundary.
				continue
			}
			section = truncateRunes(section, e.cfg.CharBudget)
			n = e.cfg.CharBudget
		}
		b.WriteString(section)
		used += n
		names = append(names, r.doc.Name)
	}

	if len(names) == 0 {
		res.Empty = true
		res.Truncated = false
		log.Info("no summarizable documents", zap.Int("skipped", len(res.Skipped)))
		return res, nil
	}

	instruction := summaryInstruction + strings.Join(names, ", ")
	summary, err := e.gen.Generate(ctx, instruction, b.String())
	if err != nil {
		return nil, apperr.Wrap(op, c.Path, err)
	}

	res.Summary = summary
	res.Included = len(names)
	log.Info("summarized folder", zap.Int("included", res.Included), zap.Int("skipped", len(res.Skipped)), zap.Bool("truncated", res.Truncated))
	return res, nil
}

// extractAll extracts every file with bounded concurrency. Results keep
// the input order and carry their own errors.
func (e *Executor) extractAll(ctx context.Context, storage adapter.StorageAdapter, files []adapter.FileMetadata) []extraction {
	out := make([]extraction, len(files))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, f := range files {
		g.Go(func() error {
			doc, err := e.extractor.Extract(ctx, storage, f)
			out[i] = extraction{file: f, doc: doc, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
