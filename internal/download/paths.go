package download

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/metadata"
	"github.com/vmunix/streamgrab/pkg/naming"
)

// Default file-name templates. "/" separates directories.
const (
	DefaultTrackTemplate    = "{album_artist}/{album}/{track:02} - {title}"
	DefaultVideoTemplate    = "Videos/{artist} - {title}"
	DefaultPlaylistTemplate = "Playlists/{source}/{artist} - {title}"
	DefaultMixTemplate      = "Mixes/{source}/{artist} - {title}"
)

// DefaultMaxNameLength is the per-component byte limit of common filesystems.
const DefaultMaxNameLength = 255

// Templates holds the per-source templates. Empty fields use the defaults.
type Templates struct {
	Track    string
	Video    string
	Playlist string
	Mix      string
}

func (t Templates) pick(task Task) string {
	if task.Template != "" {
		return task.Template
	}
	switch {
	case task.Ref.Kind == media.KindVideo:
		return firstNonEmpty(t.Video, DefaultVideoTemplate)
	case task.Source.Type == string(media.CollectionPlaylist):
		return firstNonEmpty(t.Playlist, DefaultPlaylistTemplate)
	case task.Source.Type == string(media.CollectionMix):
		return firstNonEmpty(t.Mix, DefaultMixTemplate)
	default:
		return firstNonEmpty(t.Track, DefaultTrackTemplate)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// templateVars exposes typed tags to templates.
func templateVars(task Task, tags metadata.Tags, quality media.Quality) map[string]any {
	explicit := ""
	if tags.Explicit {
		explicit = "E"
	}
	return map[string]any{
		"id":           task.Ref.ID,
		"title":        tags.FullTitle(),
		"artist":       tags.Artist,
		"artists":      strings.Join(tags.Artists, ", "),
		"album":        tags.Album,
		"album_artist": tags.AlbumArtist,
		"track":        tags.TrackNumber,
		"disc":         tags.DiscNumber,
		"year":         tags.Year(),
		"isrc":         tags.ISRC,
		"explicit":     explicit,
		"quality":      string(quality),
		"source":       task.Source.Name,
	}
}

// placeholder matches {name} or {name:02}.
var placeholder = regexp.MustCompile(`\{(\w+)(?::(\d+))?\}`)

// renderTemplate substitutes vars into tmpl. {name:02} zero-pads integers;
// unknown placeholders are left as written.
func renderTemplate(tmpl string, vars map[string]any) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		parts := placeholder.FindStringSubmatch(match)
		val, ok := vars[parts[1]]
		if !ok {
			return match
		}
		if parts[2] != "" {
			if width, err := strconv.Atoi(parts[2]); err == nil {
				if n, ok := val.(int); ok {
					return fmt.Sprintf("%0*d", width, n)
				}
			}
		}
		return fmt.Sprintf("%v", val)
	})
}

// illegalChars are not allowed in file names on common filesystems.
var illegalChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

var multiSpace = regexp.MustCompile(`\s+`)

var multiDot = regexp.MustCompile(`\.{2,}`)

// SanitizeComponent makes one path component safe: NFC normalized, illegal
// characters replaced, trimmed of spaces and dots, truncated to maxLen
// bytes without splitting a rune. An empty result becomes "_".
func SanitizeComponent(name string, maxLen int) string {
	name = naming.NFC(name)
	name = illegalChars.ReplaceAllString(name, " ")
	name = multiDot.ReplaceAllString(name, ".")
	name = multiSpace.ReplaceAllString(name, " ")
	name = strings.Trim(name, " .")
	name = truncate(name, maxLen)
	name = strings.TrimRight(name, " .")
	if name == "" {
		return "_"
	}
	return name
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// DestinationPath renders each template component under root and appends
// ext. Every component is sanitized; the last one is truncated so that it still fits
// with the extension.
func DestinationPath(root, tmpl string, vars map[string]any, ext string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxNameLength
	}
	// Split before rendering so a "/" inside a value never adds a directory.
	raw := strings.FieldsFunc(tmpl, func(r rune) bool { return r == '/' || r == '\\' })
	if len(raw) == 0 {
		raw = []string{"_"}
	}

	parts := make([]string, len(raw))
	for i, comp := range raw {
		limit := maxLen
		if i == len(raw)-1 {
			limit = max(maxLen-len(ext), 1)
		}
		parts[i] = SanitizeComponent(renderTemplate(comp, vars), limit)
	}
	parts[len(parts)-1] += ext

	dst := filepath.Join(append([]string{root}, parts...)...)
	if err := validatePath(dst, root); err != nil {
		return "", err
	}
	return dst, nil
}

// validatePath ensures path stays within root.
func validatePath(path, root string) error {
	cleanPath := filepath.Clean(path)
	cleanRoot := filepath.Clean(root)
	prefix := cleanRoot
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if cleanPath != cleanRoot && !strings.HasPrefix(cleanPath, prefix) {
		return ErrPathTraversal
	}
	return nil
}

// container picks the temp file extension and the conversion target, if
// any, for a manifest. convertVideo and extractFLAC enable the two remuxes.
func container(kind media.Kind, m *media.Manifest, convertVideo, extractFLAC bool) (ext, target string) {
	codec := strings.ToLower(m.Codec)
	mime := strings.ToLower(m.MimeType)
	isFLAC := strings.Contains(codec, "flac")

	switch {
	case kind == media.KindVideo:
		if convertVideo {
			return ".ts", "mp4"
		}
		return ".ts", ""
	case isFLAC && (strings.Contains(mime, "mp4") || mime == "application/dash+xml"):
		if extractFLAC {
			return ".m4a", "flac"
		}
		return ".m4a", ""
	case isFLAC:
		return ".flac", ""
	default:
		return ".m4a", ""
	}
}

// finalExt is the extension of the file that ends up at the destination.
func finalExt(ext, target string) string {
	if target != "" {
		return "." + target
	}
	return ext
}

// applySkipPolicy decides whether dst should be skipped and, for
// SkipAppend, returns a unique destination.
func applySkipPolicy(p SkipPolicy, dst string) (string, bool, error) {
	switch p {
	case SkipFilename:
		_, err := os.Stat(dst)
		if err == nil {
			return dst, true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("stat destination: %w", err)
		}
		return dst, false, nil

	case SkipExtensionIgnore:
		exists, err := stemExists(dst)
		if err != nil {
			return "", false, err
		}
		return dst, exists, nil

	case SkipAppend:
		unique, err := uniquePath(dst)
		return unique, false, err

	default:
		return dst, false, nil
	}
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// stemExists reports whether any regular file in dst's directory has the
// same stem as dst.
func stemExists(dst string) (bool, error) {
	entries, err := os.ReadDir(filepath.Dir(dst))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read destination dir: %w", err)
	}
	want := stem(filepath.Base(dst))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if stem(e.Name()) == want {
			return true, nil
		}
	}
	return false, nil
}

// uniquePath returns dst, or "stem (n).ext" for the lowest free n.
func uniquePath(dst string) (string, error) {
	if _, err := os.Stat(dst); errors.Is(err, fs.ErrNotExist) {
		return dst, nil
	}
	ext := filepath.Ext(dst)
	base := strings.TrimSuffix(dst, ext)
	for n := 1; n < 10000; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s", dst)
}
