// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package evidencegraph holds the evidence of one analysis run in an
// in-memory sqlite database. Every evidence source is loaded into its own
// partition and exposed as views, so contradiction patterns can join
// across sources with plain SQL.
package evidencegraph

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/evidencegraph/evidence"
	"github.com/forensicanalysis/evidencegraph/reduce"
)

// JSONElement is a single raw record.
type JSONElement []byte

// Row is one result row of a query, keyed by column name.
type Row map[string]interface{}

// Table is the result of a query.
type Table struct {
	Columns []string
	Rows    []Row
}

// LoadStats describes the load of one source partition.
type LoadStats struct {
	Source  string `json:"source"`
	Loaded  int    `json:"loaded"`
	Skipped int    `json:"skipped"`
	Invalid int    `json:"invalid"`
}

// Store is the evidence graph of one analysis run. It is owned by the
// run and discarded on Close.
type Store struct {
	cursor    *sqlite.Conn
	columns   *columnMap
	validator Validator
	sources   map[string]LoadStats
}

// elementColumns are shared by all views. file_name is the file name of a
// record or the base of its file path.
var elementColumns = []string{"id", "record_id", "source", "kind", "identity", "file_name", "type", "facets", "json"} // nolint:gochecknoglobals

var invalidName = regexp.MustCompile(`[^a-z0-9_]+`)

// SourceName normalizes a source name to a valid view name,
// e.g. "security-log" becomes "security_log".
func SourceName(name string) string {
	return strings.Trim(invalidName.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// New creates an empty in-memory store.
func New() (*Store, error) {
	cursor, err := sqlite.OpenConn(":memory:", 0)
	if err != nil {
		return nil, err
	}

	store := &Store{cursor: cursor, columns: newColumnMap(), sources: map[string]LoadStats{}}
	store.validator, err = newSchemaValidator()
	if err != nil {
		return nil, err
	}

	for _, query := range []string{
		"CREATE TABLE `elements` (id TEXT PRIMARY KEY, record_id TEXT, source TEXT NOT NULL, kind TEXT, " +
			"identity TEXT, file_name TEXT, type TEXT, facets TEXT, attrs TEXT NOT NULL, json TEXT NOT NULL, insert_time TEXT)",
		"CREATE INDEX `elements_source` ON `elements` (source)",
		"CREATE TABLE `facets` (element_id TEXT NOT NULL, source TEXT NOT NULL, facet_type TEXT NOT NULL, " +
			"position INTEGER NOT NULL, tag TEXT, json TEXT NOT NULL)",
		"CREATE INDEX `facets_source_type` ON `facets` (source, facet_type)",
		"CREATE INDEX `facets_element` ON `facets` (element_id)",
	} {
		if err := store.exec(query); err != nil {
			return nil, errors.Wrap(err, "could not create tables")
		}
	}
	return store, nil
}

// SetValidator replaces the record validator.
func (store *Store) SetValidator(v Validator) {
	store.validator = v
}

/* ################################
#   API
################################ */

// Load adds all records of a source as a new partition. The load is
// atomic: on error no record of the source remains. Records without facets
// or failing validation are skipped and counted.
func (store *Store) Load(source string, records []*evidence.Record) (LoadStats, error) {
	return store.load(source, func(stats *LoadStats, insert func(*evidence.Record) error) error {
		for _, record := range records {
			if err := insert(record); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadReader streams a JSON-LD document into a new partition.
func (store *Store) LoadReader(source string, r io.Reader) (LoadStats, error) {
	return store.load(source, func(stats *LoadStats, insert func(*evidence.Record) error) error {
		_, skipped, err := reduce.Each(r, insert)
		stats.Skipped += skipped
		return err
	})
}

// LoadFile streams a JSON-LD file into a new partition.
func (store *Store) LoadFile(fs afero.Fs, source, path string) (LoadStats, error) {
	f, err := fs.Open(path)
	if err != nil {
		return LoadStats{}, errors.Wrapf(ErrInputNotFound, "%s: %s", source, err)
	}
	defer f.Close() // nolint:errcheck
	return store.LoadReader(source, f)
}

type feeder func(stats *LoadStats, insert func(*evidence.Record) error) error

func (store *Store) load(source string, feed feeder) (stats LoadStats, err error) {
	name := SourceName(source)
	if name == "" {
		return stats, errors.Errorf("invalid source name %q", source)
	}
	if _, ok := store.sources[name]; ok {
		return stats, errors.Wrap(ErrSourceLoaded, name)
	}
	stats.Source = name

	columns := map[string]map[string]interface{}{name: {}}
	defer sqlitex.Save(store.cursor)(&err)

	insert := func(record *evidence.Record) error {
		if len(record.Facets) == 0 {
			stats.Skipped++
			return nil
		}
		flaws, err := store.validator.Validate(record.Raw)
		if err != nil {
			return errors.Wrap(err, "validation failed")
		}
		if len(flaws) > 0 {
			stats.Invalid++
			return nil
		}
		if err := store.insert(name, record, columns); err != nil {
			return err
		}
		stats.Loaded++
		return nil
	}
	if err = feed(&stats, insert); err != nil {
		return stats, errors.Wrapf(err, "could not load %s", name)
	}

	for view, fields := range columns {
		store.columns.addAll(view, fields)
	}
	for _, facetType := range evidence.FacetTypes {
		store.columns.add(name + "_" + string(facetType))
	}
	store.sources[name] = stats
	if err = store.createViews(); err != nil {
		delete(store.sources, name)
		return stats, err
	}
	return stats, nil
}

func (store *Store) insert(source string, record *evidence.Record, columns map[string]map[string]interface{}) error {
	id := source + "--" + uuid.New().String()

	attrs := map[string]interface{}{}
	var facetTypes []string
	for position, facet := range record.Facets {
		view := source + "_" + string(facet.Type())
		if _, ok := columns[view]; !ok {
			columns[view] = map[string]interface{}{}
		}
		for key, value := range facet.Attributes() {
			if _, ok := attrs[key]; !ok {
				attrs[key] = value
			}
			columns[view][key] = true
			columns[source][key] = true
		}
		facetTypes = append(facetTypes, string(facet.Type()))

		b, err := json.Marshal(facet.Attributes())
		if err != nil {
			return err
		}
		stmt, err := store.cursor.Prepare("INSERT INTO `facets` (element_id, source, facet_type, position, tag, json) " +
			"VALUES ($element_id, $source, $facet_type, $position, $tag, $json)")
		if err != nil {
			return errors.Wrap(err, "could not prepare facet statement")
		}
		stmt.SetText("$element_id", id)
		stmt.SetText("$source", source)
		stmt.SetText("$facet_type", string(facet.Type()))
		stmt.SetInt64("$position", int64(position))
		stmt.SetText("$tag", facet.Tag())
		stmt.SetText("$json", string(b))
		if _, err := stmt.Step(); err != nil {
			return errors.Wrap(err, "could not insert facet")
		}
	}

	b, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	stmt, err := store.cursor.Prepare("INSERT INTO `elements` " +
		"(id, record_id, source, kind, identity, file_name, type, facets, attrs, json, insert_time) " +
		"VALUES ($id, $record_id, $source, $kind, $identity, $file_name, $type, $facets, $attrs, $json, $time)")
	if err != nil {
		return errors.Wrap(err, "could not prepare element statement")
	}
	stmt.SetText("$id", id)
	stmt.SetText("$record_id", record.ID)
	stmt.SetText("$source", source)
	stmt.SetText("$kind", record.Kind.String())
	stmt.SetText("$identity", record.Identity)
	if name := record.FileName(); name != "" {
		stmt.SetText("$file_name", name)
	} else {
		stmt.SetNull("$file_name")
	}
	stmt.SetText("$type", record.Type)
	stmt.SetText("$facets", strings.Join(facetTypes, ","))
	stmt.SetText("$attrs", string(b))
	stmt.SetText("$json", string(record.Raw))
	stmt.SetText("$time", time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	if _, err = stmt.Step(); err != nil {
		return errors.Wrap(err, "could not insert element")
	}
	return nil
}

// Sources returns the names of all loaded partitions.
func (store *Store) Sources() []string {
	var names []string
	for name := range store.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Loaded reports whether a partition exists.
func (store *Store) Loaded(source string) bool {
	_, ok := store.sources[SourceName(source)]
	return ok
}

// Stats returns the load statistics of a partition.
func (store *Store) Stats(source string) (LoadStats, bool) {
	stats, ok := store.sources[SourceName(source)]
	return stats, ok
}

// Query executes a single read-only sql statement. Statements that would
// modify the store fail and leave all partitions untouched.
func (store *Store) Query(query string) (table *Table, err error) {
	if err := store.setQueryOnly(true); err != nil {
		return nil, err
	}
	defer func() {
		if perr := store.setQueryOnly(false); perr != nil && err == nil {
			table, err = nil, perr
		}
	}()

	stmt, err := store.cursor.Prepare(query)
	if err != nil {
		return nil, errors.Wrap(err, "could not prepare query")
	}
	return rowsToTable(stmt)
}

// Select retrieves the records of a source matching any of the conditions.
// All key value pairs of a condition are matched with LIKE against the
// columns of the source view.
func (store *Store) Select(source string, conditions []map[string]string) (elements []JSONElement, err error) {
	name := SourceName(source)
	if !store.Loaded(name) {
		return nil, errors.Errorf("source %s not loaded", name)
	}
	var ors []string
	for _, condition := range conditions {
		var keys []string
		for key := range condition {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var ands []string
		for _, key := range keys {
			ands = append(ands, fmt.Sprintf("%s LIKE '%s'", quoteIdent(key), strings.ReplaceAll(condition[key], "'", "''")))
		}
		if len(ands) > 0 {
			ors = append(ors, "("+strings.Join(ands, " AND ")+")")
		}
	}

	query := fmt.Sprintf("SELECT json FROM %s", quoteIdent(name))
	if len(ors) > 0 {
		query += fmt.Sprintf(" WHERE %s", strings.Join(ors, " OR ")) // #nosec
	}

	stmt, err := store.cursor.Prepare(query) // #nosec
	if err != nil {
		return nil, err
	}
	return rowsToElements(stmt)
}

// All returns every record of a source.
func (store *Store) All(source string) (elements []JSONElement, err error) {
	return store.Select(source, nil)
}

// Close discards all evidence.
func (store *Store) Close() error {
	return store.cursor.Close()
}

/* ################################
#   Views
################################ */

// createViews (re)creates all views whose columns changed. Every source
// gets a view with one row per record and a view per facet type with one
// row per facet. Attribute columns are named by the local part of their
// key, e.g. parentPath.
func (store *Store) createViews() error {
	for _, view := range store.columns.takeChanged() {
		source, facetType := view, ""
		if _, ok := store.sources[view]; !ok {
			for _, ft := range evidence.FacetTypes {
				if strings.HasSuffix(view, "_"+string(ft)) {
					source, facetType = strings.TrimSuffix(view, "_"+string(ft)), string(ft)
					break
				}
			}
		}

		err := store.exec(fmt.Sprintf("DROP VIEW IF EXISTS %s", quoteIdent(view)))
		if err != nil {
			return err
		}

		var query string
		if facetType == "" {
			columns := append(elementSelect("e"), attributeColumns("e.attrs", store.columns.keys(view))...)
			query = fmt.Sprintf("CREATE VIEW %s AS SELECT %s FROM `elements` e WHERE e.source = '%s'",
				quoteIdent(view), strings.Join(columns, ", "), source)
		} else {
			columns := append(elementSelect("e"), "f.position AS position", "f.tag AS tag", "f.json AS facet")
			columns = append(columns, attributeColumns("f.json", store.columns.keys(view))...)
			query = fmt.Sprintf("CREATE VIEW %s AS SELECT %s FROM `facets` f JOIN `elements` e ON e.id = f.element_id "+
				"WHERE f.source = '%s' AND f.facet_type = '%s'",
				quoteIdent(view), strings.Join(columns, ", "), source, facetType)
		}
		if err := store.exec(query); err != nil {
			return errors.Wrapf(err, "could not create view %s", view)
		}
	}
	return nil
}

func elementSelect(table string) []string {
	var columns []string
	for _, column := range elementColumns {
		columns = append(columns, fmt.Sprintf("%s.%s AS %s", table, column, column))
	}
	return columns
}

// attributeColumns extracts the canonical vocabulary and every seen key.
// Keys whose local name is already taken fall back to the full key.
func attributeColumns(source string, seen []string) []string {
	used := map[string]bool{}
	for _, column := range elementColumns {
		used[column] = true
	}
	used["position"], used["tag"], used["facet"] = true, true, true

	var columns []string
	addColumn := func(key string) {
		if strings.ContainsAny(key, `"`) {
			return
		}
		name := ColumnName(key)
		if used[name] {
			name = fullColumnName(key)
			if used[name] {
				return
			}
		}
		used[name] = true
		path := strings.ReplaceAll(fmt.Sprintf(`$."%s"`, key), "'", "''")
		columns = append(columns, fmt.Sprintf("json_extract(%s, '%s') AS %s", source, path, quoteIdent(name)))
	}

	for _, key := range evidence.CanonicalKeys {
		addColumn(key)
	}
	canonical := map[string]bool{}
	for _, key := range evidence.CanonicalKeys {
		canonical[key] = true
	}
	for _, key := range seen {
		if !canonical[key] {
			addColumn(key)
		}
	}
	return columns
}

// ColumnName returns the view column of an attribute key.
func ColumnName(key string) string {
	return strings.ReplaceAll(evidence.LocalName(key), "-", "_")
}

func fullColumnName(key string) string {
	return strings.NewReplacer(":", "_", "-", "_").Replace(key)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

/* ################################
#   Intern
################################ */

func rowsToElements(stmt *sqlite.Stmt) (elements []JSONElement, err error) {
	elements = []JSONElement{}
	for {
		if hasRow, err := stmt.Step(); err != nil {
			return nil, err
		} else if !hasRow {
			break
		}
		elements = append(elements, JSONElement(stmt.GetText("json")))
	}
	return elements, stmt.Finalize()
}

func rowsToTable(stmt *sqlite.Stmt) (*Table, error) {
	table := &Table{Rows: []Row{}}
	for i := 0; i < stmt.ColumnCount(); i++ {
		table.Columns = append(table.Columns, stmt.ColumnName(i))
	}
	for {
		if hasRow, err := stmt.Step(); err != nil {
			_ = stmt.Finalize()
			return nil, err
		} else if !hasRow {
			break
		}
		row := Row{}
		for i, column := range table.Columns {
			switch stmt.ColumnType(i) { // nolint:exhaustive
			case sqlite.SQLITE_NULL:
				row[column] = nil
			case sqlite.SQLITE_INTEGER:
				row[column] = stmt.ColumnInt64(i)
			case sqlite.SQLITE_FLOAT:
				row[column] = stmt.ColumnFloat(i)
			default:
				row[column] = stmt.ColumnText(i)
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, stmt.Finalize()
}

func (store *Store) setQueryOnly(on bool) error {
	value := "OFF"
	if on {
		value = "ON"
	}
	return errors.Wrap(store.exec("PRAGMA query_only = "+value), "could not set query_only")
}

func (store *Store) exec(query string) error {
	stmt, err := store.cursor.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Step()
	if err != nil {
		return err
	}

	return stmt.Finalize()
}
