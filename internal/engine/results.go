package engine

// Result is the success value of one command. The reply composer renders
// each concrete type with its own template.
type Result interface {
	isResult()
}

// SetupResult carries a grant link, or confirms an existing connection.
type SetupResult struct {
	URL               string
	AlreadyAuthorized bool
	AccountEmail      string
}

// ListResult holds a folder's children, folders first, each group sorted.
type ListResult struct {
	Path    string
	Folders []string
	Files   []string
}

type UploadResult struct {
	Name string
	Path string
}

type RenameResult struct {
	OldName string
	NewName string
}

type MoveResult struct {
	File   string
	Source string
	Dest   string
}

type DeleteResult struct {
	File string
	Path string
}

// SummaryResult is the outcome of SUMMARY. Empty means nothing could be
// summarized and Summary is blank. Skipped names documents whose text
// could not be extracted; a non-empty Skipped is a partial failure.
type SummaryResult struct {
	Path      string
	Summary   string
	Included  int
	Skipped   []string
	Truncated bool
	Empty     bool
}

// UsageResult asks the composer for help text. Known is the keyword the
// user got wrong, if any.
type UsageResult struct {
	Known string
}

func (SetupResult) isResult()   {}
func (ListResult) isResult()    {}
func (UploadResult) isResult()  {}
func (RenameResult) isResult()  {}
func (MoveResult) isResult()    {}
func (DeleteResult) isResult()  {}
func (SummaryResult) isResult() {}
func (UsageResult) isResult()   {}
