// Package copier moves one table mapping from a source to a destination
// adapter: clear the destination, read the table metadata once, then stream
// pages through fetch, mask, identity stripping and insert.
//
// Pages are processed strictly in fetch order and each page is inserted in
// its own transaction. A failure mid-table leaves the destination cleared and
// partially filled; nothing is rolled back beyond the failing page.
package copier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"maskflow/internal/db"
	"maskflow/internal/domain"
	"maskflow/internal/logger"
	"maskflow/internal/masking"
	"maskflow/internal/metrics"
	"maskflow/internal/skiplog"
)

const (
	// DefaultPageSize is the number of rows fetched, masked and inserted per cycle.
	DefaultPageSize = 1000

	// maxCellWarnings caps per-cell masking warnings in the execution log
	// for one table. The audit file still records every cell.
	maxCellWarnings = 20
)

// Masker replaces one cell value. *masking.Masker satisfies it.
type Masker interface {
	Mask(category domain.PIICategory, v any) (any, error)
}

// Options configure a Processor.
type Options struct {
	PageSize int
	// Workflow labels metrics.
	Workflow string
	// Audit receives every cell left unmasked. May be nil.
	Audit *skiplog.Audit
	Log   logrus.FieldLogger
}

// Processor copies table mappings. One Processor serves one execution; it
// is not safe for concurrent CopyTable calls.
type Processor struct {
	masker   Masker
	pageSize int
	workflow string
	audit    *skiplog.Audit
	log      logrus.FieldLogger
}

// New returns a Processor using m for PII columns.
func New(m Masker, opts Options) *Processor {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	return &Processor{
		masker:   m,
		pageSize: opts.PageSize,
		workflow: opts.Workflow,
		audit:    opts.Audit,
		log:      opts.Log,
	}
}

// plan is the per-table metadata resolved once before streaming.
type plan struct {
	srcCols    []string
	insertCols []string
	keep       []int // source positions kept in the insert row
	skipped    []string
	pii        []piiColumn
	limits     []widthLimit
	widths     string
}

type piiColumn struct {
	pos      int
	column   string
	category domain.PIICategory
}

// tableRun holds the mutable state of one CopyTable call.
type tableRun struct {
	p         *Processor
	tm        domain.TableMapping
	emit      Emit
	log       logrus.FieldLogger
	cellWarns int
	unmasked  map[string]int
}

func (r *tableRun) info(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.log.Info(msg)
	r.emit(Event{Level: LevelInfo, Table: r.tm.SourceTable, Message: msg})
}

func (r *tableRun) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.log.Warn(msg)
	r.emit(Event{Level: LevelWarn, Table: r.tm.SourceTable, Message: msg})
}

func (r *tableRun) progress(records int64, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.log.Info(msg)
	r.emit(Event{Level: LevelInfo, Table: r.tm.SourceTable, Message: msg, Progress: true, Records: records})
}

// CopyTable runs one table mapping and returns the number of source records
// processed. emit receives the execution log lines; it may be nil.
func (p *Processor) CopyTable(ctx context.Context, src, dst db.Adapter, tm domain.TableMapping, emit Emit) (int64, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	r := &tableRun{
		p:        p,
		tm:       tm,
		emit:     emit,
		unmasked: map[string]int{},
		log: p.log.WithFields(logrus.Fields{
			"table":       tm.SourceTable,
			"destination": tm.DestinationTable,
		}),
	}
	start := time.Now()
	n, err := r.run(ctx, src, dst)
	metrics.RecordStep(p.workflow, "table", err, time.Since(start))
	if err != nil {
		r.log.WithError(err).Error("table copy failed")
	}
	return n, err
}

func (r *tableRun) run(ctx context.Context, src, dst db.Adapter) (int64, error) {
	tm := r.tm
	if len(tm.Columns) == 0 {
		return 0, &StepError{Step: StepPlan, Table: tm.SourceTable, Err: ErrNoColumns}
	}

	r.info("Clearing existing data from destination table: %s", tm.DestinationTable)
	t0 := time.Now()
	cleared, err := dst.ClearTable(ctx, tm.DestinationTable)
	metrics.RecordStep(r.p.workflow, string(StepClear), err, time.Since(t0))
	if err != nil {
		return 0, &StepError{Step: StepClear, Table: tm.DestinationTable, Err: err}
	}
	r.info("Successfully cleared destination table: %s (%d rows)", tm.DestinationTable, cleared)

	pl, err := r.plan(ctx, src, dst)
	if err != nil {
		return 0, err
	}
	if len(pl.skipped) > 0 {
		r.info("Skipping identity columns in %s: %s", tm.DestinationTable, strings.Join(pl.skipped, ", "))
	}
	if pl.widths != "" {
		r.info("Destination column widths for %s: %s", tm.DestinationTable, pl.widths)
	}

	total, err := src.CountRows(ctx, tm.SourceTable)
	if err != nil {
		return 0, &StepError{Step: StepCount, Table: tm.SourceTable, Err: err}
	}
	r.info("Starting to process %d records from %s", total, tm.SourceTable)
	if total == 0 {
		r.warn("Warning: Source table %s is empty", tm.SourceTable)
		return 0, nil
	}

	cur, err := src.OpenCursor(ctx, tm.SourceTable, pl.srcCols)
	if err != nil {
		return 0, &StepError{Step: StepFetch, Table: tm.SourceTable, Err: err}
	}
	defer cur.Close()

	var (
		processed   int64
		inserted    int64
		batch       int
		begin       = time.Now()
		lastFlushTS = begin
	)
	for {
		t0 := time.Now()
		page, err := cur.Next(ctx, r.p.pageSize)
		metrics.RecordStep(r.p.workflow, string(StepFetch), err, time.Since(t0))
		if err != nil {
			return processed, &StepError{Step: StepFetch, Table: tm.SourceTable, Err: err}
		}
		if len(page) == 0 {
			break
		}
		batch++
		metrics.RecordRows(r.p.workflow, metrics.KindFetched, int64(len(page)))

		t0 = time.Now()
		r.maskPage(page, pl, processed)
		metrics.RecordStep(r.p.workflow, "mask", nil, time.Since(t0))

		rows := project(page, pl.keep)
		for _, o := range checkWidths(rows, pl.limits) {
			r.warn("Warning: %d value(s) for column %s exceed destination width %d in %s (longest %d)",
				o.count, o.column, o.max, tm.DestinationTable, o.longest)
		}

		t0 = time.Now()
		n, err := dst.BulkInsert(ctx, tm.DestinationTable, pl.insertCols, rows)
		metrics.RecordStep(r.p.workflow, string(StepInsert), err, time.Since(t0))
		if err != nil {
			r.warn("Failed to insert batch %d for %s: %v", batch, tm.SourceTable, err)
			return processed, &StepError{Step: StepInsert, Table: tm.DestinationTable, Err: err}
		}
		inserted += n
		processed += int64(len(page))
		metrics.RecordRows(r.p.workflow, metrics.KindInserted, n)
		metrics.RecordPages(r.p.workflow, 1)

		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(len(page)) / sinceLast.Seconds()
		}
		r.log.Debugf("batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s since_last=%s",
			batch, rps, n, inserted, now.Sub(begin).Truncate(time.Millisecond), sinceLast.Truncate(time.Millisecond))
		lastFlushTS = now

		pct := float64(processed) / float64(total) * 100
		r.progress(processed, "Processing batch %d for %s: %d/%d records (%.1f%%)",
			batch, tm.SourceTable, processed, total, pct)
	}

	if len(r.unmasked) > 0 {
		r.warn("Warning: values left unmasked in %s: %s", tm.SourceTable, describeReasons(r.unmasked))
		if err := r.p.audit.Flush(); err != nil {
			r.log.WithError(err).Warn("flush unmasked-cell audit")
		}
	}
	r.info("Processed table %s: %d records", tm.SourceTable, processed)
	return processed, nil
}

// plan reads both tables' metadata once, checks every mapped column exists
// and resolves the identity positions to drop from each row.
func (r *tableRun) plan(ctx context.Context, src, dst db.Adapter) (*plan, error) {
	tm := r.tm
	srcMeta, err := src.TableMetadata(ctx, tm.SourceTable)
	if err != nil {
		return nil, &StepError{Step: StepMetadata, Table: tm.SourceTable, Err: err}
	}
	dstMeta, err := dst.TableMetadata(ctx, tm.DestinationTable)
	if err != nil {
		return nil, &StepError{Step: StepMetadata, Table: tm.DestinationTable, Err: err}
	}

	pl := &plan{srcCols: tm.SourceColumns()}
	var insertInfo []db.ColumnInfo
	for i, cm := range tm.Columns {
		if _, ok := srcMeta.Column(cm.SourceColumn); !ok {
			return nil, &StepError{Step: StepMetadata, Table: tm.SourceTable,
				Err: fmt.Errorf("%w: %s.%s", ErrColumnNotFound, tm.SourceTable, cm.SourceColumn)}
		}
		dc, ok := dstMeta.Column(cm.DestinationColumn)
		if !ok {
			return nil, &StepError{Step: StepMetadata, Table: tm.DestinationTable,
				Err: fmt.Errorf("%w: %s.%s", ErrColumnNotFound, tm.DestinationTable, cm.DestinationColumn)}
		}
		if cm.IsPII {
			pl.pii = append(pl.pii, piiColumn{pos: i, column: cm.SourceColumn, category: cm.Category})
		}
		if dstMeta.IsIdentity(cm.DestinationColumn) {
			pl.skipped = append(pl.skipped, cm.DestinationColumn)
			continue
		}
		if dc.MaxLength > 0 {
			pl.limits = append(pl.limits, widthLimit{pos: len(pl.keep), column: cm.DestinationColumn, max: dc.MaxLength})
		}
		pl.keep = append(pl.keep, i)
		pl.insertCols = append(pl.insertCols, cm.DestinationColumn)
		insertInfo = append(insertInfo, dc)
	}
	if len(pl.keep) == 0 {
		return nil, &StepError{Step: StepMetadata, Table: tm.DestinationTable, Err: ErrNoInsertableColumns}
	}
	pl.widths = describeWidths(insertInfo)
	return pl, nil
}

// maskPage replaces PII cells in place. A cell that fails keeps its
// original value, is logged and is written to the audit file.
func (r *tableRun) maskPage(page [][]any, pl *plan, rowBase int64) {
	if len(pl.pii) == 0 {
		return
	}
	var masked, failed int64
	for j, row := range page {
		for _, c := range pl.pii {
			v := row[c.pos]
			if masking.IsBlank(v) {
				continue
			}
			out, err := r.p.masker.Mask(c.category, v)
			if err != nil {
				failed++
				r.cellFailed(c, rowBase+int64(j)+1, err)
				continue
			}
			row[c.pos] = out
			masked++
		}
	}
	metrics.RecordRows(r.p.workflow, metrics.KindMasked, masked)
	metrics.RecordRows(r.p.workflow, metrics.KindUnmasked, failed)
}

func (r *tableRun) cellFailed(c piiColumn, row int64, err error) {
	reason := "mask_error"
	var ce *masking.CellError
	if errors.As(err, &ce) && ce.Reason != "" {
		reason = ce.Reason
	}
	r.unmasked[reason]++
	r.p.audit.Add(reason, r.tm.SourceTable, c.column, row, err.Error())

	r.cellWarns++
	switch {
	case r.cellWarns <= maxCellWarnings:
		r.warn("Warning: Failed to mask column %s in %s (row %d): %v", c.column, r.tm.SourceTable, row, err)
	case r.cellWarns == maxCellWarnings+1:
		r.warn("Warning: further masking failures in %s are not logged individually", r.tm.SourceTable)
	}
}

// project keeps the listed positions of every row, in order.
func project(page [][]any, keep []int) [][]any {
	if len(page) > 0 && len(keep) == len(page[0]) {
		return page
	}
	out := make([][]any, len(page))
	for i, row := range page {
		pr := make([]any, len(keep))
		for k, pos := range keep {
			pr[k] = row[pos]
		}
		out[i] = pr
	}
	return out
}
