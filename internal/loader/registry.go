package loader

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/tabload/internal/core"
)

// FormatDefinition describes how one file format is parsed.
type FormatDefinition struct {
	Format     core.Format
	Extensions []string // Lowercase, with the leading dot
	Binary     bool     // Binary formats skip encoding probing and record "utf-8"
	open       func(io.Reader, parseOptions) (rowReader, error)
}

var (
	formats     = make(map[core.Format]FormatDefinition)
	byExtension = make(map[string]core.Format)
	formatsMu   sync.RWMutex
)

func init() {
	register(FormatDefinition{Format: core.FormatCSV, Extensions: []string{".csv", ".txt"}, open: newCSVReader})
	register(FormatDefinition{Format: core.FormatTSV, Extensions: []string{".tsv", ".tab"}, open: newTSVReader})
	register(FormatDefinition{Format: core.FormatJSONL, Extensions: []string{".jsonl", ".ndjson", ".json"}, open: newJSONLReader})
	register(FormatDefinition{Format: core.FormatXLSX, Extensions: []string{".xlsx", ".xlsm"}, Binary: true, open: newXLSXReader})
}

// register adds a format definition.
// Panics if the format or one of its extensions is already registered.
func register(def FormatDefinition) {
	formatsMu.Lock()
	defer formatsMu.Unlock()

	if _, exists := formats[def.Format]; exists {
		panic(fmt.Sprintf("format already registered: %s", def.Format))
	}
	for _, ext := range def.Extensions {
		if other, exists := byExtension[ext]; exists {
			panic(fmt.Sprintf("extension %s already registered for %s", ext, other))
		}
		byExtension[ext] = def.Format
	}
	formats[def.Format] = def
}

// Lookup returns a format definition.
// Returns false if not found.
func Lookup(format core.Format) (FormatDefinition, bool) {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	def, ok := formats[format]
	return def, ok
}

// Formats returns all registered formats, sorted by name.
func Formats() []core.Format {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	result := make([]core.Format, 0, len(formats))
	for f := range formats {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// compressionExtensions maps file suffixes to compression wrappers.
var compressionExtensions = map[string]core.Compression{
	".gz":  core.CompressionGzip,
	".bz2": core.CompressionBzip2,
	".xz":  core.CompressionXZ,
	".zst": core.CompressionZstd,
}

// detect fills in the format and compression of src from its name when
// they are not set explicitly. Unknown or missing extensions parse as CSV.
func detect(src core.Source) (FormatDefinition, core.Compression, error) {
	name := strings.ToLower(src.Path)
	if name == "" {
		name = strings.ToLower(src.Name)
	}

	comp := src.Compression
	ext := filepath.Ext(name)
	if c, ok := compressionExtensions[ext]; ok {
		if comp == core.CompressionAuto {
			comp = c
		}
		name = strings.TrimSuffix(name, ext)
		ext = filepath.Ext(name)
	}
	if comp == core.CompressionAuto {
		comp = core.CompressionNone
	}

	format := src.Format
	if format == core.FormatAuto {
		formatsMu.RLock()
		f, ok := byExtension[ext]
		formatsMu.RUnlock()
		if ok {
			format = f
		} else {
			format = core.FormatCSV
		}
	}

	def, ok := Lookup(format)
	if !ok {
		return FormatDefinition{}, "", fmt.Errorf("unsupported format %q", format)
	}
	return def, comp, nil
}
