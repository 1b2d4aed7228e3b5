package command

import (
	"errors"
	"strings"
	"unicode"

	"github.com/jun/drivechat/internal/apperr"
	"github.com/jun/drivechat/internal/pathres"
)

// ErrMissingMedia is the parse failure for an UPLOAD without an attachment.
var ErrMissingMedia = errors.New("UPLOAD requires an attached file")

// ErrMediaTooLarge is returned when an UPLOAD attachment exceeds the
// download cap.
var ErrMediaTooLarge = errors.New("attachment exceeds the upload limit")

// Parse turns raw message text into a Command. The keyword is everything
// before the first "/" (or the whole text when there is none). The only
// error it returns is a Parse-kind *apperr.Error for an UPLOAD without
// media; everything else malformed becomes Unrecognized.
func Parse(raw string, media *Media) (Command, error) {
	text := strings.TrimSpace(raw)
	keyword, args, _ := strings.Cut(text, "/")
	keyword = strings.ToUpper(strings.TrimSpace(keyword))
	args = strings.TrimSpace(args)

	bad := Unrecognized{Raw: raw, Known: keyword}

	switch keyword {
	case KeywordSetup:
		return Setup{}, nil

	case KeywordHelp:
		return Unrecognized{Raw: raw}, nil

	case KeywordList:
		if pathres.Normalize(args) == "" {
			return bad, nil
		}
		return List{Path: pathres.Normalize(args)}, nil

	case KeywordSummary:
		if pathres.Normalize(args) == "" {
			return bad, nil
		}
		return Summary{Path: pathres.Normalize(args)}, nil

	case KeywordUpload:
		if media == nil || media.URL == "" {
			return nil, apperr.New(apperr.KindParse, "parse", KeywordUpload, ErrMissingMedia)
		}
		path, name := cutSpace(args)
		return Upload{Path: pathres.Normalize(path), Name: name, Media: *media}, nil

	case KeywordRename:
		var oldName, newName string
		if strings.Contains(args, "/") {
			oldName, newName, _ = strings.Cut(args, "/")
		} else {
			oldName, newName = cutSpace(args)
		}
		oldName, newName = strings.TrimSpace(oldName), strings.TrimSpace(newName)
		if oldName == "" || newName == "" || strings.Contains(newName, "/") {
			return bad, nil
		}
		return Rename{OldName: oldName, NewName: newName}, nil

	case KeywordMove:
		parts := strings.SplitN(args, "/", 3)
		if len(parts) != 3 {
			return bad, nil
		}
		src := strings.TrimSpace(parts[0])
		file := strings.TrimSpace(parts[1])
		dest := pathres.Normalize(parts[2])
		if src == "" || file == "" || dest == "" {
			return bad, nil
		}
		return Move{Source: src, File: file, Dest: dest}, nil

	case KeywordDelete:
		segs := pathres.Split(args)
		if len(segs) < 2 {
			return bad, nil
		}
		return Delete{
			Path: strings.Join(segs[:len(segs)-1], "/"),
			File: segs[len(segs)-1],
		}, nil
	}

	return Unrecognized{Raw: raw}, nil
}

// cutSpace splits s at its first run of whitespace.
func cutSpace(s string) (head, tail string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
