// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package expression

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mastermind1981/eventql/engine"
)

func byHost(rows []engine.Row) map[string]engine.Row {
	out := make(map[string]engine.Row, len(rows))
	for _, r := range rows {
		out[r["host"].(string)] = r
	}
	return out
}

func TestGroupByCountSumAvg(t *testing.T) {
	input := sliceTable{
		{"host": "web-1", "latency": int64(10)},
		{"host": "web-1", "latency": int64(20)},
		{"host": "web-2", "latency": int64(30)},
	}

	selectList := []SelectItem{
		{Alias: "host", Plain: column("host")},
		{Alias: "request_count", Aggregate: &AggregateSpec{Op: OpCount}},
		{Alias: "avg_latency", Aggregate: &AggregateSpec{Op: OpAvg, Arg: column("latency")}},
	}
	gb := NewGroupBy(input, selectList, []engine.ValueExpression{column("host")})

	rows := collectRows(t, gb)
	byH := byHost(rows)

	require.Len(t, rows, 2)
	require.Equal(t, int64(2), byH["web-1"]["request_count"])
	require.Equal(t, float64(15), byH["web-1"]["avg_latency"])
	require.Equal(t, int64(1), byH["web-2"]["request_count"])
	require.Equal(t, float64(30), byH["web-2"]["avg_latency"])
}

func TestPartialGroupByLeavesAvgAsRunningSum(t *testing.T) {
	input := sliceTable{
		{"host": "web-1", "latency": int64(10)},
		{"host": "web-1", "latency": int64(20)},
	}
	selectList := []SelectItem{
		{Alias: "host", Plain: column("host")},
		{Alias: "avg_latency", Aggregate: &AggregateSpec{Op: OpAvg, Arg: column("latency")}},
	}
	pgb := NewPartialGroupBy(input, selectList, []engine.ValueExpression{column("host")})

	rows := collectRows(t, pgb)

	require.Len(t, rows, 1)
	require.Equal(t, float64(30), rows[0]["avg_latency"])
}

func TestGroupByMergeCombinesShardPartials(t *testing.T) {
	// Two unevenly-sized shards contribute partial aggregates for the same
	// groups, as SplitAggregation's PipelinedExpression would fan out and
	// collect. Using real PartialGroupBy output (rather than hand-written
	// partial rows) exercises the internal groupCountAlias bookkeeping
	// GroupByMerge relies on to weight AVG correctly across uneven shards.
	selectList := []SelectItem{
		{Alias: "host", Plain: column("host")},
		{Alias: "request_count", Aggregate: &AggregateSpec{Op: OpCount}},
		{Alias: "avg_latency", Aggregate: &AggregateSpec{Op: OpAvg, Arg: column("latency")}},
	}
	groupExprs := []engine.ValueExpression{column("host")}

	shardA := sliceTable{
		{"host": "web-1", "latency": int64(10)},
		{"host": "web-1", "latency": int64(20)},
	}
	shardB := sliceTable{
		{"host": "web-1", "latency": int64(40)},
		{"host": "web-2", "latency": int64(10)},
		{"host": "web-2", "latency": int64(20)},
		{"host": "web-2", "latency": int64(60)},
	}

	var shards sliceTable
	for _, shard := range []sliceTable{shardA, shardB} {
		partial := NewPartialGroupBy(shard, selectList, groupExprs)
		shards = append(shards, collectRows(t, partial)...)
	}

	merge := &GroupByMerge{Shards: shards, SelectList: selectList, GroupExprs: groupExprs}

	rows := collectRows(t, merge)
	byH := byHost(rows)

	require.Len(t, rows, 2)
	require.Equal(t, int64(3), byH["web-1"]["request_count"])
	require.InDelta(t, float64(70)/3, byH["web-1"]["avg_latency"], 0.0001)
	require.Equal(t, int64(3), byH["web-2"]["request_count"])
	require.InDelta(t, float64(30), byH["web-2"]["avg_latency"], 0.0001)
}

// concurrentShards fans rows out across n goroutines, mirroring the way
// exec.PipelinedExpression.Execute drives its RowWriter: from separate
// goroutines, with no ordering guarantee between them.
type concurrentShards [][]engine.Row

func (c concurrentShards) Execute(ctx context.Context, out engine.RowWriter) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(c))
	for _, shard := range c {
		shard := shard
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, row := range shard {
				if err := out.WriteRow(row); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// TestGroupByMergeConcurrentShardsSafe exercises reduceGroups' RowWriter
// with many goroutines writing partial rows at once, the shape
// GroupByMerge actually sees in production (Shards is normally an
// *exec.PipelinedExpression, whose Execute documents that its RowWriter
// must tolerate concurrent writers). Run with -race to catch a regression.
func TestGroupByMergeConcurrentShardsSafe(t *testing.T) {
	var shards concurrentShards
	for s := 0; s < 8; s++ {
		var rows []engine.Row
		for i := 0; i < 50; i++ {
			rows = append(rows, engine.Row{"host": "web-1", "request_count": int64(1), "avg_latency": float64(1)})
		}
		shards = append(shards, rows)
	}

	merge := &GroupByMerge{
		Shards: shards,
		SelectList: []SelectItem{
			{Alias: "host", Plain: column("host")},
			{Alias: "request_count", Aggregate: &AggregateSpec{Op: OpCount}},
		},
		GroupExprs: []engine.ValueExpression{column("host")},
	}

	rows := collectRows(t, merge)

	require.Len(t, rows, 1)
	require.Equal(t, int64(400), rows[0]["request_count"])
}

func TestGroupByOrdersGroupsByFirstAppearance(t *testing.T) {
	input := sliceTable{
		{"host": "b"}, {"host": "a"}, {"host": "b"},
	}
	gb := NewGroupBy(input, []SelectItem{{Alias: "host", Plain: column("host")}}, []engine.ValueExpression{column("host")})

	rows := collectRows(t, gb)

	var hosts []string
	for _, r := range rows {
		hosts = append(hosts, r["host"].(string))
	}
	require.Equal(t, []string{"b", "a"}, hosts)

	sorted := append([]string(nil), hosts...)
	sort.Strings(sorted)
	require.ElementsMatch(t, []string{"a", "b"}, sorted)
}
