// Package reply renders command outcomes as chat messages that fit the
// transport's size limit.
package reply

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jun/drivechat/internal/apperr"
	"github.com/jun/drivechat/internal/command"
	"github.com/jun/drivechat/internal/engine"
)

// DefaultLimit is the WhatsApp body limit, in characters.
const DefaultLimit = 1600

// Message is an ordered sequence of chunks, sent in order.
type Message struct {
	Chunks []Chunk
}

// Texts returns each chunk as it is sent.
func (m Message) Texts() []string {
	out := make([]string, len(m.Chunks))
	for i, c := range m.Chunks {
		out[i] = c.Text()
	}
	return out
}

// Body concatenates the payloads, which reproduces the rendered text.
func (m Message) Body() string {
	var b strings.Builder
	for _, c := range m.Chunks {
		b.WriteString(c.Payload)
	}
	return b.String()
}

// Composer renders results and errors.
type Composer struct {
	limit int
}

// NewComposer creates a Composer that keeps every chunk within limit
// characters, marker included.
func NewComposer(limit int) *Composer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Composer{limit: limit}
}

// Compose renders res, or err when it is non-nil, and splits the text.
func (c *Composer) Compose(res engine.Result, err error) Message {
	if err != nil {
		return c.Text(RenderError(err))
	}
	return c.Text(RenderResult(res))
}

// Text splits arbitrary text into a Message.
func (c *Composer) Text(text string) Message {
	return Message{Chunks: Split(text, c.limit)}
}

func folder(path string) string {
	return "/" + path
}

// RenderResult applies the template for a success value.
func RenderResult(res engine.Result) string {
	switch r := res.(type) {
	case engine.SetupResult:
		if r.AlreadyAuthorized {
			account := ""
			if r.AccountEmail != "" {
				account = " as " + r.AccountEmail
			}
			return fmt.Sprintf("✅ Your Google Drive is already connected%s. Send HELP to see the commands.", account)
		}
		return "Please click the link below to securely connect your Google Drive.\n\n" +
			"1. Click: " + r.URL + "\n" +
			"2. Log in and Grant Permissions.\n\n" +
			"After authorization, you can use all commands."

	case engine.ListResult:
		if len(r.Folders) == 0 && len(r.Files) == 0 {
			return fmt.Sprintf("📂 Folder %s is empty.", folder(r.Path))
		}
		var b strings.Builder
		fmt.Fprintf(&b, "📂 *Contents of %s:*", folder(r.Path))
		for _, name := range r.Folders {
			fmt.Fprintf(&b, "\n  > *%s/*", name)
		}
		for _, name := range r.Files {
			fmt.Fprintf(&b, "\n  - %s", name)
		}
		return b.String()

	case engine.UploadResult:
		return fmt.Sprintf("✅ Uploaded *%s* to %s.", r.Name, folder(r.Path))

	case engine.RenameResult:
		return fmt.Sprintf("✅ Renamed *%s* to *%s*.", r.OldName, r.NewName)

	case engine.MoveResult:
		return fmt.Sprintf("✅ Moved *%s* from %s to %s.", r.File, folder(r.Source), folder(r.Dest))

	case engine.DeleteResult:
		return fmt.Sprintf("🗑️ Moved *%s* from %s to the trash.", r.File, folder(r.Path))

	case engine.SummaryResult:
		return renderSummary(r)

	case engine.UsageResult:
		return Usage(r.Known)
	}
	return "✅ Done."
}

func renderSummary(r engine.SummaryResult) string {
	var b strings.Builder
	if r.Empty {
		fmt.Fprintf(&b, "📂 No summarizable documents in %s.", folder(r.Path))
		if len(r.Skipped) > 0 {
			fmt.Fprintf(&b, "\nCould not read: %s", strings.Join(r.Skipped, ", "))
		}
		return b.String()
	}

	fmt.Fprintf(&b, "🤖 *AI Summary for %s*\n\n%s\n\n", folder(r.Path), r.Summary)
	docs := "documents"
	if r.Included == 1 {
		docs = "document"
	}
	fmt.Fprintf(&b, "_Based on %d %s._", r.Included, docs)
	if r.Truncated {
		b.WriteString(" _Summary based on partial content: the text limit was reached._")
	}
	if len(r.Skipped) > 0 {
		b.WriteByte('\n')
		b.WriteString(RenderError(apperr.New(apperr.KindPartialFailure, "summary", strings.Join(r.Skipped, ", "), nil)))
	}
	return b.String()
}

// RenderError applies the template for the error's kind.
func RenderError(err error) string {
	var ae *apperr.Error
	subject := ""
	if errors.As(err, &ae) {
		subject = ae.Subject
	}

	switch apperr.KindOf(err) {
	case apperr.KindParse:
		if errors.Is(err, command.ErrMissingMedia) {
			return "❌ UPLOAD needs an attached file. Send the file with the caption UPLOAD/FolderName NewFileName.ext"
		}
		if errors.Is(err, command.ErrMediaTooLarge) {
			return "❌ That attachment is too large to upload."
		}
		return "❌ That command could not be read. Send HELP to see the commands."
	case apperr.KindAuthorizationRequired:
		return AuthorizationPrompt
	case apperr.KindNotFound:
		if subject == "" {
			return "❌ Not found."
		}
		return fmt.Sprintf("❌ '%s' was not found.", subject)
	case apperr.KindAmbiguous:
		return fmt.Sprintf("⚠️ More than one item is named '%s'. Rename one of them or use a more specific path.", subject)
	case apperr.KindForbidden:
		if subject == "" {
			return "⛔ Google Drive denied access."
		}
		return fmt.Sprintf("⛔ Google Drive denied access to '%s'.", subject)
	case apperr.KindPartialFailure:
		if subject == "" {
			return "⚠️ Some documents could not be read and were skipped."
		}
		return fmt.Sprintf("⚠️ Skipped: %s", subject)
	case apperr.KindUnavailable:
		return "⏳ Google Drive is not responding right now. Please try again in a moment."
	case apperr.KindGenerationFailed:
		return "⚠️ The AI summary could not be generated right now. Please try SUMMARY again later."
	}
	return "❌ Something went wrong while handling your command. Please try again."
}

// AuthorizationPrompt is sent for any command but SETUP from an identity
// without a connected Drive.
const AuthorizationPrompt = "🔐 Your Drive is not connected. Please send the command 'SETUP' to link your Google Drive first."

// Connected confirms a completed grant over chat.
func Connected(email string) string {
	if email == "" {
		return "✅ Google Drive connected successfully! You can now use commands like LIST/Reports."
	}
	return fmt.Sprintf("✅ Google Drive connected successfully as %s! You can now use commands like LIST/Reports.", email)
}

var formats = map[string]string{
	command.KeywordList:    "LIST/FolderName",
	command.KeywordUpload:  "UPLOAD/FolderName NewFileName.ext",
	command.KeywordRename:  "RENAME/OldFileName.ext NewFileName.ext",
	command.KeywordMove:    "MOVE/SourceFolder/file.pdf/DestFolder",
	command.KeywordDelete:  "DELETE/FolderName/file.pdf",
	command.KeywordSummary: "SUMMARY/FolderName",
}

const help = "Available commands:\n" +
	"SETUP - connect your Google Drive\n" +
	"LIST/Folder/Sub - list a folder\n" +
	"UPLOAD/Folder NewFileName.ext - upload the attached file\n" +
	"RENAME/OldFileName.ext NewFileName.ext - rename a file\n" +
	"MOVE/SourceFolder/file.pdf/DestFolder - move a file\n" +
	"DELETE/Folder/file.pdf - move a file to the trash\n" +
	"SUMMARY/Folder - summarize the documents in a folder"

// Usage renders help, led by the correct format for a misused keyword.
func Usage(known string) string {
	if f, ok := formats[known]; ok {
		return fmt.Sprintf("Invalid %s format. Use: %s\n\n%s", known, f, help)
	}
	return help
}
