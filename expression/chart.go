// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package expression

import (
	"context"

	"github.com/mastermind1981/eventql/engine"
)

// Draw is one rendered panel of a Chart, reading its series from one or
// more already-built input table expressions.
type Draw struct {
	InputTables []engine.TableExpression
}

// Chart collects the rows of every Draw panel's input tables; rendering
// itself is a presentation concern the caller (outside this module's
// scope) applies to the emitted rows. Execute writes one row per input
// row, tagged with the panel index it belongs to, rather than rendering
// an image: that keeps Chart a plain engine.TableExpression like every
// other node the scheduler builds.
type Chart struct {
	Draws []Draw
}

func (e *Chart) Execute(ctx context.Context, out engine.RowWriter) error {
	for panelIdx, draw := range e.Draws {
		for _, table := range draw.InputTables {
			err := table.Execute(ctx, rowMapWriter(func(row engine.Row) error {
				tagged := make(engine.Row, len(row)+1)
				for k, v := range row {
					tagged[k] = v
				}
				tagged["_panel"] = panelIdx
				return out.WriteRow(tagged)
			}))
			if err != nil {
				return err
			}
		}
	}
	return nil
}
