package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/jun/drivechat/internal/adapter"
	"github.com/jun/drivechat/internal/adapter/memory"
	"github.com/jun/drivechat/internal/apperr"
	"github.com/jun/drivechat/internal/auth"
	"github.com/jun/drivechat/internal/command"
	"github.com/jun/drivechat/internal/extract"
	"github.com/jun/drivechat/internal/pathres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const who = "whatsapp:+15550001"

type fakeGenerator struct {
	mu           sync.Mutex
	calls        int
	instructions []string
	contents     []string
	err          error
}

func (g *fakeGenerator) Generate(ctx context.Context, instruction, content string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.instructions = append(g.instructions, instruction)
	g.contents = append(g.contents, content)
	if g.err != nil {
		return "", g.err
	}
	return "A short summary.", nil
}

type fakeFetcher struct {
	body string
	err  error
	urls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, string, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), "image/png", nil
}

type fakeAuthorizer struct {
	grant *auth.Grant
}

func (a *fakeAuthorizer) BeginAuthorization(ctx context.Context, identity string) (*auth.Grant, error) {
	return a.grant, nil
}

type fixture struct {
	exec    *Executor
	drive   *memory.MemoryAdapter
	gen     *fakeGenerator
	fetcher *fakeFetcher
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		drive:   memory.NewMemoryAdapter(),
		gen:     &fakeGenerator{},
		fetcher: &fakeFetcher{body: "image-bytes"},
	}
	f.exec = NewExecutor(pathres.New(time.Minute, nil), extract.New(nil, 0), f.gen, f.fetcher,
		&fakeAuthorizer{grant: &auth.Grant{URL: "https://accounts.example.com/auth"}}, cfg, nil)
	return f
}

func (f *fixture) mkdir(t *testing.T, name, parent string) string {
	t.Helper()
	m, err := f.drive.CreateFolder(context.Background(), name, parent)
	require.NoError(t, err)
	return m.ID
}

func (f *fixture) put(t *testing.T, name, mimeType, content, parent string) string {
	t.Helper()
	m, err := f.drive.Upload(context.Background(), name, mimeType, bytes.NewReader([]byte(content)), parent)
	require.NoError(t, err)
	return m.ID
}

func (f *fixture) run(t *testing.T, cmd command.Command) (Result, error) {
	t.Helper()
	return f.exec.Execute(context.Background(), who, f.drive, cmd)
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae, "executor errors must be classified")
	assert.Equal(t, kind, ae.Kind, "error: %v", err)
}

func TestList_FoldersFirstThenFiles(t *testing.T) {
	f := newFixture(t, Config{})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	f.put(t, "notes.txt", adapter.MIMEPlainText, "n", reports)
	f.put(t, "budget.pdf", adapter.MIMEPDF, "b", reports)
	f.mkdir(t, "Archive", reports)

	res, err := f.run(t, command.List{Path: "Reports"})
	require.NoError(t, err)
	want := ListResult{Path: "Reports", Folders: []string{"Archive"}, Files: []string{"budget.pdf", "notes.txt"}}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("LIST mismatch (-want +got):\n%s", diff)
	}
}

func TestList_EmptyAndMissing(t *testing.T) {
	f := newFixture(t, Config{})
	f.mkdir(t, "Empty", adapter.RootID)

	res, err := f.run(t, command.List{Path: "Empty"})
	require.NoError(t, err)
	assert.Equal(t, ListResult{Path: "Empty"}, res)

	_, err = f.run(t, command.List{Path: "Nope/Deeper"})
	assertKind(t, err, apperr.KindNotFound)
}

func TestUpload_CreatesMissingFolders(t *testing.T) {
	f := newFixture(t, Config{})

	res, err := f.run(t, command.Upload{Path: "Inbox/2024", Name: "receipt.png", Media: command.Media{URL: "https://media/1", ContentType: "image/png"}})
	require.NoError(t, err)
	assert.Equal(t, UploadResult{Name: "receipt.png", Path: "Inbox/2024"}, res)
	assert.Equal(t, []string{"https://media/1"}, f.fetcher.urls)

	listed, err := f.run(t, command.List{Path: "Inbox/2024"})
	require.NoError(t, err)
	assert.Equal(t, []string{"receipt.png"}, listed.(ListResult).Files)
}

func TestUpload_GeneratedName(t *testing.T) {
	f := newFixture(t, Config{})
	f.exec.now = func() time.Time { return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC) }

	res, err := f.run(t, command.Upload{Media: command.Media{URL: "https://media/2", ContentType: "image/png"}})
	require.NoError(t, err)
	up := res.(UploadResult)
	assert.True(t, strings.HasPrefix(up.Name, "upload-20240301-103000-"), up.Name)
	assert.True(t, strings.HasSuffix(up.Name, ".png"), up.Name)
	assert.Equal(t, "", up.Path)
}

func TestUpload_FetchFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"transport", fmt.Errorf("fetch media: connection reset: %w", adapter.ErrUnavailable), apperr.KindUnavailable},
		{"oversized", fmt.Errorf("fetch media: more than 16 bytes: %w", command.ErrMediaTooLarge), apperr.KindParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			f.fetcher.err = tt.err

			_, err := f.run(t, command.Upload{Path: "Inbox/2024", Name: "a.png", Media: command.Media{URL: "u"}})
			assertKind(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)

			_, err = f.run(t, command.List{Path: "Inbox"})
			assertKind(t, err, apperr.KindNotFound)
		})
	}
}

func TestRename_ExactMatchAnywhere(t *testing.T) {
	f := newFixture(t, Config{})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	deep := f.mkdir(t, "2024", reports)
	id := f.put(t, "draft.txt", adapter.MIMEPlainText, "x", deep)
	f.put(t, "draft.txt.bak", adapter.MIMEPlainText, "x", reports)

	res, err := f.run(t, command.Rename{OldName: "draft.txt", NewName: "final.txt"})
	require.NoError(t, err)
	assert.Equal(t, RenameResult{OldName: "draft.txt", NewName: "final.txt"}, res)

	files, err := f.drive.FindFiles(context.Background(), deep, "final.txt")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, id, files[0].ID)
}

func TestRename_ZeroAndMultipleMatches(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.mkdir(t, "A", adapter.RootID)
	b := f.mkdir(t, "B", adapter.RootID)
	f.put(t, "dup.txt", adapter.MIMEPlainText, "1", a)
	f.put(t, "dup.txt", adapter.MIMEPlainText, "2", b)

	_, err := f.run(t, command.Rename{OldName: "missing.txt", NewName: "x.txt"})
	assertKind(t, err, apperr.KindNotFound)

	_, err = f.run(t, command.Rename{OldName: "dup.txt", NewName: "x.txt"})
	assertKind(t, err, apperr.KindAmbiguous)
}

func TestRename_SearchLimit(t *testing.T) {
	f := newFixture(t, Config{SearchLimit: 2})
	parent := adapter.RootID
	for _, name := range []string{"a", "b", "c"} {
		parent = f.mkdir(t, name, parent)
	}
	f.put(t, "deep.txt", adapter.MIMEPlainText, "x", parent)

	_, err := f.run(t, command.Rename{OldName: "deep.txt", NewName: "y.txt"})
	assertKind(t, err, apperr.KindUnavailable)
}

func TestMove(t *testing.T) {
	f := newFixture(t, Config{})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	archive := f.mkdir(t, "Archive", adapter.RootID)
	id := f.put(t, "budget.pdf", adapter.MIMEPDF, "b", reports)

	res, err := f.run(t, command.Move{Source: "Reports", File: "budget.pdf", Dest: "Archive"})
	require.NoError(t, err)
	assert.Equal(t, MoveResult{File: "budget.pdf", Source: "Reports", Dest: "Archive"}, res)

	files, err := f.drive.FindFiles(context.Background(), archive, "budget.pdf")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, id, files[0].ID)

	// Now the file only exists under Archive; the source is specific.
	_, err = f.run(t, command.Move{Source: "Reports", File: "budget.pdf", Dest: "Archive"})
	assertKind(t, err, apperr.KindNotFound)
}

func TestMove_MissingDestination(t *testing.T) {
	f := newFixture(t, Config{})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	f.put(t, "budget.pdf", adapter.MIMEPDF, "b", reports)

	_, err := f.run(t, command.Move{Source: "Reports", File: "budget.pdf", Dest: "Nowhere"})
	assertKind(t, err, apperr.KindNotFound)
}

func TestDelete_SoftDeletes(t *testing.T) {
	f := newFixture(t, Config{})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	id := f.put(t, "old.txt", adapter.MIMEPlainText, "x", reports)

	res, err := f.run(t, command.Delete{Path: "Reports", File: "old.txt"})
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{File: "old.txt", Path: "Reports"}, res)
	assert.True(t, f.drive.IsTrashed(id))

	_, err = f.run(t, command.Delete{Path: "Reports", File: "old.txt"})
	assertKind(t, err, apperr.KindNotFound)
}

func TestDelete_Ambiguous(t *testing.T) {
	f := newFixture(t, Config{})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	f.put(t, "copy.txt", adapter.MIMEPlainText, "1", reports)
	f.put(t, "copy.txt", adapter.MIMEPlainText, "2", reports)

	_, err := f.run(t, command.Delete{Path: "Reports", File: "copy.txt"})
	assertKind(t, err, apperr.KindAmbiguous)
}

func TestSetupAndUsage(t *testing.T) {
	f := newFixture(t, Config{})

	res, err := f.run(t, command.Setup{})
	require.NoError(t, err)
	assert.Equal(t, SetupResult{URL: "https://accounts.example.com/auth"}, res)

	res, err = f.run(t, command.Unrecognized{Raw: "MOVE/x", Known: command.KeywordMove})
	require.NoError(t, err)
	assert.Equal(t, UsageResult{Known: command.KeywordMove}, res)
}

func TestSummary_AggregatesInListingOrder(t *testing.T) {
	f := newFixture(t, Config{})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	f.mkdir(t, "Sub", reports)
	f.put(t, "b-notes.txt", adapter.MIMEPlainText, "second", reports)
	f.put(t, "a-plan", adapter.MIMEGoogleDoc, "first", reports)
	f.put(t, "photo.jpg", "image/jpeg", "binary", reports)

	res, err := f.run(t, command.Summary{Path: "Reports"})
	require.NoError(t, err)
	sum := res.(SummaryResult)
	assert.Equal(t, "A short summary.", sum.Summary)
	assert.Equal(t, 2, sum.Included)
	assert.Empty(t, sum.Skipped)
	assert.False(t, sum.Truncated)

	require.Equal(t, 1, f.gen.calls)
	assert.Equal(t, "\n\n=== a-plan ===\nfirst\n\n=== b-notes.txt ===\nsecond", f.gen.contents[0])
	assert.Contains(t, f.gen.instructions[0], "Do not exceed 300 words")
	assert.Contains(t, f.gen.instructions[0], "a-plan, b-notes.txt")
}

func TestSummary_NoEligibleDocumentsSkipsGeneration(t *testing.T) {
	f := newFixture(t, Config{})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	f.put(t, "photo.jpg", "image/jpeg", "binary", reports)
	f.mkdir(t, "Sub", reports)

	res, err := f.run(t, command.Summary{Path: "Reports"})
	require.NoError(t, err)
	assert.True(t, res.(SummaryResult).Empty)
	assert.Equal(t, 0, f.gen.calls)
}

func TestSummary_FailedExtractionIsSkipped(t *testing.T) {
	f := newFixture(t, Config{})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	f.put(t, "broken.pdf", adapter.MIMEPDF, "not a pdf", reports)
	f.put(t, "blank.txt", adapter.MIMEPlainText, "   ", reports)
	f.put(t, "good.txt", adapter.MIMEPlainText, "content", reports)

	res, err := f.run(t, command.Summary{Path: "Reports"})
	require.NoError(t, err)
	sum := res.(SummaryResult)
	assert.Equal(t, 1, sum.Included)
	assert.ElementsMatch(t, []string{"broken.pdf", "blank.txt"}, sum.Skipped)
}

func TestSummary_AllFailedIsEmpty(t *testing.T) {
	f := newFixture(t, Config{})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	f.put(t, "broken.pdf", adapter.MIMEPDF, "not a pdf", reports)

	res, err := f.run(t, command.Summary{Path: "Reports"})
	require.NoError(t, err)
	sum := res.(SummaryResult)
	assert.True(t, sum.Empty)
	assert.Equal(t, []string{"broken.pdf"}, sum.Skipped)
	assert.Equal(t, 0, f.gen.calls)
}

func TestSummary_BudgetCutsAtDocumentBoundary(t *testing.T) {
	f := newFixture(t, Config{CharBudget: 100})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	f.put(t, "a.txt", adapter.MIMEPlainText, strings.Repeat("a", 40), reports)
	f.put(t, "b.txt", adapter.MIMEPlainText, strings.Repeat("b", 80), reports)

	res, err := f.run(t, command.Summary{Path: "Reports"})
	require.NoError(t, err)
	sum := res.(SummaryResult)
	assert.True(t, sum.Truncated)
	assert.Equal(t, 1, sum.Included)
	assert.Equal(t, "\n\n=== a.txt ===\n"+strings.Repeat("a", 40), f.gen.contents[0])
}

func TestSummary_BudgetCutsMidDocumentWhenFirstIsTooLong(t *testing.T) {
	f := newFixture(t, Config{CharBudget: 50})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	f.put(t, "long.txt", adapter.MIMEPlainText, strings.Repeat("é", 500), reports)

	res, err := f.run(t, command.Summary{Path: "Reports"})
	require.NoError(t, err)
	sum := res.(SummaryResult)
	assert.True(t, sum.Truncated)
	assert.Equal(t, 1, sum.Included)
	assert.Equal(t, 50, utf8.RuneCountInString(f.gen.contents[0]))
	assert.True(t, utf8.ValidString(f.gen.contents[0]))
}

func TestSummary_DocumentCap(t *testing.T) {
	f := newFixture(t, Config{MaxDocuments: 2})
	reports := f.mkdir(t, "Reports", adapter.RootID)
	for _, n := range []string{"1.txt", "2.txt", "3.txt"} {
		f.put(t, n, adapter.MIMEPlainText, "text "+n, reports)
	}

	res, err := f.run(t, command.Summary{Path: "Reports"})
	require.NoError(t, err)
	sum := res.(SummaryResult)
	assert.Equal(t, 2, sum.Included)
	assert.Equal(t, []string{"3.txt"}, sum.Skipped)
}

func TestSummary_GenerationFailureIsDistinct(t *testing.T) {
	f := newFixture(t, Config{})
	f.gen.err = apperr.New(apperr.KindGenerationFailed, "generate", "", errors.New("quota"))
	reports := f.mkdir(t, "Reports", adapter.RootID)
	f.put(t, "a.txt", adapter.MIMEPlainText, "x", reports)

	_, err := f.run(t, command.Summary{Path: "Reports"})
	assertKind(t, err, apperr.KindGenerationFailed)
	assert.Equal(t, 1, f.gen.calls)
}

func TestSummary_MissingFolder(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.run(t, command.Summary{Path: "Nope"})
	assertKind(t, err, apperr.KindNotFound)
	assert.Equal(t, 0, f.gen.calls)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "", truncateRunes("abc", 0))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
}
