package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	filePerm = 0644

	// Stdout is the file name that selects standard output.
	Stdout = "-"

	errorFailedEncodeTable  = "failed to encode handler table: %w"
	errorFailedLoadTable    = "failed to load handler table %s: %w"
	errorInvalidDeclaration = "%s: handler entry %d: %s"
)

// Format is a table serialisation format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the format for a file name by extension. Anything that is
// not .json is YAML.
func FormatFor(filename string) Format {
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Encode writes data to w in the given format.
func Encode(w io.Writer, data interface{}, format Format) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		_ = encoder.Close()
		return err
	}
	// Close flushes the encoder.
	return encoder.Close()
}

// WriteFile writes data to filename, replacing any existing file. The format
// follows the extension.
func WriteFile(data interface{}, filename string) error {
	err := os.Remove(filename)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return err
	}

	if err := Encode(file, data, FormatFor(filename)); err != nil {
		return errors.Join(err, file.Close())
	}
	return file.Close()
}

// WriteTable writes the resolved table to filename, or YAML to w when
// filename is Stdout.
func WriteTable(table *Table, filename string, w io.Writer) error {
	if table == nil {
		return fmt.Errorf("table cannot be nil")
	}
	table.Sort()

	if filename == Stdout {
		if err := Encode(w, table, FormatYAML); err != nil {
			return fmt.Errorf(errorFailedEncodeTable, err)
		}
		return nil
	}
	if err := WriteFile(table, filename); err != nil {
		return fmt.Errorf(errorFailedEncodeTable, err)
	}
	return nil
}

// LoadTable reads a resolved table written by WriteTable.
func LoadTable(filename string) (*Table, error) {
	var t Table
	if err := load(filename, &t); err != nil {
		return nil, fmt.Errorf(errorFailedLoadTable, filename, err)
	}
	return &t, nil
}

// LoadDeclarations reads a handler declaration file. Every entry must name
// a package, a type and a method.
func LoadDeclarations(filename string) (*DeclarationFile, error) {
	var f DeclarationFile
	if err := load(filename, &f); err != nil {
		return nil, fmt.Errorf(errorFailedLoadTable, filename, err)
	}

	for i := range f.Handlers {
		d := &f.Handlers[i]
		switch {
		case d.Package == "":
			return nil, fmt.Errorf(errorInvalidDeclaration, filename, i, "missing package")
		case d.Type == "":
			return nil, fmt.Errorf(errorInvalidDeclaration, filename, i, "missing type")
		case d.Method == "":
			return nil, fmt.Errorf(errorInvalidDeclaration, filename, i, "missing method")
		}
		d.Source = SourceTable
		d.Position.Filename = filename
	}
	return &f, nil
}

// load decodes filename into data. Unknown keys are errors, so a misspelled
// key or a file of the wrong kind is not read as an empty table.
func load(filename string, data interface{}) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if FormatFor(filename) == FormatJSON {
		dec := json.NewDecoder(f)
		dec.DisallowUnknownFields()
		return dec.Decode(data)
	}

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(data); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Sort orders packages by path and owners by type name. Handler order is
// declaration order and is left alone.
func (t *Table) Sort() {
	sort.Slice(t.Packages, func(i, j int) bool {
		return t.Packages[i].Path < t.Packages[j].Path
	})
	for _, p := range t.Packages {
		sort.Slice(p.Owners, func(i, j int) bool {
			return p.Owners[i].Type < p.Owners[j].Type
		})
	}
}
