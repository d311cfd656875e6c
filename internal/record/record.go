package record

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"
)

const (
	// UnknownExtension is used when a file name carries no extension.
	UnknownExtension = "unknown"

	// TimeFormat is the on-disk format of the mtime field.
	TimeFormat = time.RFC3339

	fieldCount = 6
)

// Epoch is the mtime recorded for entries whose modification time cannot be read.
var Epoch = time.Unix(0, 0).UTC()

// ErrMalformed is returned by ParseLine for lines that are not valid records.
var ErrMalformed = errors.New("malformed staging line")

// Record is one regular file observed during a single crawl.
type Record struct {
	Name      string    `json:"name"`
	Extension string    `json:"extension"`
	Path      string    `json:"path"`
	Size      int64     `json:"sizeBytes"`
	ModTime   time.Time `json:"modifiedAt"`
	ScanID    int64     `json:"scanId"`
}

// New builds a Record for path from its lstat result.
func New(path string, info fs.FileInfo, scanID int64) Record {
	size := info.Size()
	if size < 0 {
		size = 0
	}
	return Record{
		Name:      info.Name(),
		Extension: ExtensionOf(info.Name()),
		Path:      path,
		Size:      size,
		ModTime:   NormalizeModTime(info.ModTime()),
		ScanID:    scanID,
	}
}

// ExtensionOf returns the extension of a base name without the leading dot,
// in its native case. Names without an extension, including dotfiles such as
// ".bashrc", yield UnknownExtension.
func ExtensionOf(name string) string {
	trimmed := strings.TrimPrefix(name, ".")
	idx := strings.LastIndexByte(trimmed, '.')
	if idx < 0 || idx == len(trimmed)-1 {
		return UnknownExtension
	}
	return trimmed[idx+1:]
}

// NormalizeModTime converts t to UTC at second precision. Zero and
// pre-epoch times collapse to Epoch.
func NormalizeModTime(t time.Time) time.Time {
	if t.IsZero() || t.Before(Epoch) {
		return Epoch
	}
	return t.UTC().Truncate(time.Second)
}

// AppendLine appends the newline-terminated staging line for r to dst.
func (r Record) AppendLine(dst []byte) []byte {
	dst = appendEscaped(dst, r.Name)
	dst = append(dst, '\t')
	dst = appendEscaped(dst, r.Extension)
	dst = append(dst, '\t')
	dst = appendEscaped(dst, r.Path)
	dst = append(dst, '\t')
	dst = strconv.AppendInt(dst, r.Size, 10)
	dst = append(dst, '\t')
	dst = r.ModTime.UTC().AppendFormat(dst, TimeFormat)
	dst = append(dst, '\t')
	dst = strconv.AppendInt(dst, r.ScanID, 10)
	return append(dst, '\n')
}

// Line returns the staging line for r, including the trailing newline.
func (r Record) Line() string {
	return string(r.AppendLine(make([]byte, 0, 128+len(r.Path))))
}

// ParseLine decodes one staging line. A single trailing newline is accepted.
func ParseLine(line string) (Record, error) {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.Split(line, "\t")
	if len(fields) != fieldCount {
		return Record{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformed, fieldCount, len(fields))
	}

	var (
		r   Record
		err error
	)
	if r.Name, err = unescape(fields[0]); err != nil {
		return Record{}, err
	}
	if r.Extension, err = unescape(fields[1]); err != nil {
		return Record{}, err
	}
	if r.Path, err = unescape(fields[2]); err != nil {
		return Record{}, err
	}

	r.Size, err = strconv.ParseInt(fields[3], 10, 64)
	if err != nil || r.Size < 0 {
		return Record{}, fmt.Errorf("%w: invalid size %q", ErrMalformed, fields[3])
	}

	r.ModTime, err = time.Parse(TimeFormat, fields[4])
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid mtime %q", ErrMalformed, fields[4])
	}
	r.ModTime = r.ModTime.UTC()

	r.ScanID, err = strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid scan id %q", ErrMalformed, fields[5])
	}

	if r.Name == "" || r.Path == "" {
		return Record{}, fmt.Errorf("%w: empty name or path", ErrMalformed)
	}
	return r, nil
}

func appendEscaped(dst []byte, s string) []byte {
	if !strings.ContainsAny(s, "\\\t\n\r") {
		return append(dst, s...)
	}
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		default:
			dst = append(dst, c)
		}
	}
	return dst
}

func unescape(s string) (string, error) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i == len(s) {
			return "", fmt.Errorf("%w: dangling escape", ErrMalformed)
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			return "", fmt.Errorf("%w: unknown escape \\%c", ErrMalformed, s[i])
		}
	}
	return b.String(), nil
}
