// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

// Package tableref parses the table reference strings carried by
// qtree.SequentialScan.TableName. Two syntaxes are recognized:
//
//   - "<table>.<begin>:<limit>" — a time-suffixed bare table name, where
//     begin/limit are Unix microsecond timestamps. This is what the SQL
//     parser emits for a query against "table" scoped to a time range; the
//     rewrite package lifts it into a WHERE predicate and a bare table
//     name (see rewrite.Lift).
//   - "tsdb://host/<table>/<partition>" — an explicit, already-located
//     partition reference, as produced by scheduler.Split when it clones
//     a query subtree per shard.
//
// A bare table name with neither suffix parses to a Ref with only
// TableKey set.
package tableref

import (
	"net/url"
	"strconv"
	"strings"
)

// Ref is the parsed form of a table reference.
type Ref struct {
	TableKey       string
	PartitionKey   string // empty unless the tsdb:// form was used
	TimerangeBegin *int64 // nil unless a time suffix was present
	TimerangeLimit *int64 // nil unless a time suffix was present
}

// HasPartitionKey reports whether the reference already names an explicit
// partition, i.e. it came from the tsdb:// form.
func (r Ref) HasPartitionKey() bool { return r.PartitionKey != "" }

// HasFullTimerange reports whether both ends of a time-suffixed range are
// present. A reference with only one endpoint is left alone by the
// rewriter (see rewrite.Lift).
func (r Ref) HasFullTimerange() bool {
	return r.TimerangeBegin != nil && r.TimerangeLimit != nil
}

// Parse parses a raw table name into a Ref. It never returns an error: a
// string that matches neither recognized syntax is treated as a bare
// table key, matching the original source's lenient parser.
func Parse(raw string) Ref {
	if ref, ok := parseTSDBURI(raw); ok {
		return ref
	}
	if ref, ok := parseTimeSuffix(raw); ok {
		return ref
	}
	return Ref{TableKey: raw}
}

func parseTSDBURI(raw string) (Ref, bool) {
	if !strings.HasPrefix(raw, "tsdb://") {
		return Ref{}, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Ref{}, false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, false
	}
	tableKey, err := url.QueryUnescape(parts[0])
	if err != nil {
		return Ref{}, false
	}
	return Ref{TableKey: tableKey, PartitionKey: parts[1]}, true
}

func parseTimeSuffix(raw string) (Ref, bool) {
	dot := strings.LastIndexByte(raw, '.')
	colon := strings.LastIndexByte(raw, ':')
	if dot < 0 || colon < dot {
		return Ref{}, false
	}
	begin, err := strconv.ParseInt(raw[dot+1:colon], 10, 64)
	if err != nil {
		return Ref{}, false
	}
	limit, err := strconv.ParseInt(raw[colon+1:], 10, 64)
	if err != nil {
		return Ref{}, false
	}
	return Ref{TableKey: raw[:dot], TimerangeBegin: &begin, TimerangeLimit: &limit}, true
}

// FormatShardURI builds the tsdb:// reference a plan-split shard uses for
// its cloned SequentialScan, matching the original scheduler's
// StringUtil::format("tsdb://localhost/$0/$1", ...).
func FormatShardURI(tableKey, partitionKey string) string {
	return "tsdb://localhost/" + url.QueryEscape(tableKey) + "/" + partitionKey
}
