// Package sourcemap decodes source-map documents into lookup tables that map
// positions in generated code back to original source lines.
//
// Only the fields needed for line attribution are read: "file", "sourceRoot",
// "sources" and "mappings". The "mappings" string is decoded exactly as the
// published Base64-VLQ format prescribes: semicolons separate generated lines,
// commas separate segments, and every segment field is a delta against the
// running state of the whole document (the generated column alone restarts at
// zero on each generated line).
package sourcemap

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	apperrors "github.com/exec-heatmap/pkg/errors"
	"github.com/exec-heatmap/pkg/model"
)

// Document is the subset of a source-map document the decoder reads.
type Document struct {
	Version    int      `json:"version"`
	File       string   `json:"file"`
	SourceRoot string   `json:"sourceRoot"`
	Sources    []string `json:"sources"`
	Names      []string `json:"names"`
	Mappings   *string  `json:"mappings"`
}

// Table holds the decoded mapping entries of one compiled unit.
// A Table is never mutated after Decode returns.
type Table struct {
	Name    string
	Sources []string
	Entries []model.MappingEntry

	index map[position]int
}

type position struct {
	line   int
	column int
}

// Lookup returns the first entry whose generated position matches exactly.
func (t *Table) Lookup(generatedLine, generatedColumn int) (model.MappingEntry, bool) {
	if t == nil {
		return model.MappingEntry{}, false
	}
	idx, ok := t.index[position{line: generatedLine, column: generatedColumn}]
	if !ok {
		return model.MappingEntry{}, false
	}
	return t.Entries[idx], true
}

// Decode parses a source-map document and decodes its mappings.
// name identifies the compiled unit and is used when the document has no
// "file" field.
func Decode(name string, data []byte) (*Table, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.MalformedSourceMap(name, err)
	}
	if doc.Mappings == nil {
		return nil, apperrors.MalformedSourceMap(name, fmt.Errorf("missing mappings"))
	}
	if doc.Sources == nil {
		return nil, apperrors.MalformedSourceMap(name, fmt.Errorf("missing sources"))
	}

	if doc.File != "" {
		name = doc.File
	}
	return DecodeDocument(name, &doc), nil
}

// DecodeDocument decodes the mappings of an already parsed document.
func DecodeDocument(name string, doc *Document) *Table {
	sources := make([]string, len(doc.Sources))
	for i, src := range doc.Sources {
		sources[i] = joinSourceRoot(doc.SourceRoot, src)
	}

	var mappings string
	if doc.Mappings != nil {
		mappings = *doc.Mappings
	}

	entries := decodeMappings(mappings, sources)
	table := &Table{
		Name:    name,
		Sources: sources,
		Entries: entries,
		index:   make(map[position]int, len(entries)),
	}
	for i, e := range entries {
		pos := position{line: e.GeneratedLine, column: e.GeneratedColumn}
		if _, exists := table.index[pos]; !exists {
			table.index[pos] = i
		}
	}
	return table
}

func decodeMappings(mappings string, sources []string) []model.MappingEntry {
	var (
		entries   []model.MappingEntry
		genLine   = 1
		srcIndex  int
		srcLine   int
		srcColumn int
	)

	for _, line := range strings.Split(mappings, ";") {
		genColumn := 0

		for _, segment := range strings.Split(line, ",") {
			if segment == "" {
				continue
			}
			fields := DecodeVLQ(segment)
			if len(fields) == 0 {
				continue
			}

			genColumn += fields[0]
			if len(fields) > 1 {
				srcIndex += fields[1]
			}
			if len(fields) > 2 {
				srcLine += fields[2]
			}
			if len(fields) > 3 {
				srcColumn += fields[3]
			}

			if srcIndex < 0 || srcIndex >= len(sources) || srcLine < 0 {
				continue
			}
			entries = append(entries, model.MappingEntry{
				GeneratedLine:   genLine,
				GeneratedColumn: genColumn,
				SourceLine:      srcLine + 1,
				SourceColumn:    srcColumn,
				SourceFile:      sources[srcIndex],
			})
		}

		genLine++
	}

	return entries
}

func joinSourceRoot(root, source string) string {
	if root == "" || path.IsAbs(source) || strings.Contains(source, "://") {
		return source
	}
	if strings.HasSuffix(root, "/") {
		return root + source
	}
	return root + "/" + source
}
