// Package command parses inbound chat text into typed commands.
package command

// Keywords recognised by Parse, case-insensitively.
const (
	KeywordSetup   = "SETUP"
	KeywordList    = "LIST"
	KeywordUpload  = "UPLOAD"
	KeywordRename  = "RENAME"
	KeywordMove    = "MOVE"
	KeywordDelete  = "DELETE"
	KeywordSummary = "SUMMARY"
	KeywordHelp    = "HELP"
)

// Media references an attachment delivered with the message.
type Media struct {
	URL         string
	ContentType string
}

// Command is one parsed instruction. The concrete types below are the
// only implementations.
type Command interface {
	Keyword() string
}

type Setup struct{}

type List struct {
	Path string
}

// Upload stores Media under Path. Name is empty when the sender gave none.
type Upload struct {
	Path  string
	Name  string
	Media Media
}

type Rename struct {
	OldName string
	NewName string
}

// Move reparents File from Source to Dest. Source is a single folder name.
type Move struct {
	Source string
	File   string
	Dest   string
}

type Delete struct {
	Path string
	File string
}

type Summary struct {
	Path string
}

// Unrecognized carries the original text. Known is set when the keyword
// was recognised but its arguments were malformed.
type Unrecognized struct {
	Raw   string
	Known string
}

func (Setup) Keyword() string   { return KeywordSetup }
func (List) Keyword() string    { return KeywordList }
func (Upload) Keyword() string  { return KeywordUpload }
func (Rename) Keyword() string  { return KeywordRename }
func (Move) Keyword() string    { return KeywordMove }
func (Delete) Keyword() string  { return KeywordDelete }
func (Summary) Keyword() string { return KeywordSummary }

func (u Unrecognized) Keyword() string {
	if u.Known != "" {
		return u.Known
	}
	return "UNRECOGNIZED"
}
