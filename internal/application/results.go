package application

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/pipeline"
	"github.com/jobrunner/envextract/internal/ports/output"
)

// Columns the platform adds to every exported table.
const (
	columnIndex    = "system:index"
	columnGeometry = ".geo"
)

// Statistic columns in the order they are looked for.
var statisticColumns = []string{"mean", "sum", "mode", "histogram"}

// ResultService reads exported tables from object storage.
type ResultService struct {
	storage output.ObjectStorage
	metrics output.MetricsCollector
	logger  *slog.Logger
	prefix  string
	idField string
}

// NewResultService creates a new result service.
func NewResultService(
	storage output.ObjectStorage,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	prefix string,
	idField string,
) *ResultService {
	if idField == "" {
		idField = domain.DefaultIDField
	}
	return &ResultService{
		storage: storage,
		metrics: metrics,
		logger:  logger,
		prefix:  prefix,
		idField: idField,
	}
}

// ListResults returns the keys of the exported tables, without extension.
func (s *ResultService) ListResults(ctx context.Context) ([]string, error) {
	start := time.Now()
	objects, err := s.storage.List(ctx, s.prefix)
	s.metrics.IncStorageOperations("list", err == nil)
	s.metrics.ObserveStorageDuration("list", time.Since(start))
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Key: s.prefix, Err: err}
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if !strings.EqualFold(path.Ext(obj.Key), ".csv") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(path.Base(obj.Key), path.Ext(obj.Key)))
	}
	slices.Sort(keys)
	return keys, nil
}

// ReadResult parses an exported table and drops its null rows.
func (s *ResultService) ReadResult(ctx context.Context, key string) (*domain.ResultTable, error) {
	name := strings.TrimSuffix(path.Base(key), ".csv")
	if name == "" || name == "." || strings.Contains(key, "..") {
		return nil, &domain.ValidationError{
			Field:      "key",
			Value:      key,
			Constraint: "table name",
			Message:    "invalid result key",
		}
	}
	objectKey := path.Join(s.prefix, name+".csv")

	start := time.Now()
	ok, err := s.storage.Exists(ctx, objectKey)
	if err != nil {
		s.metrics.IncStorageOperations("exists", false)
		return nil, &domain.StorageError{Operation: "exists", Key: objectKey, Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrResultNotFound)
	}

	rc, err := s.storage.GetReader(ctx, objectKey)
	if err != nil {
		s.metrics.IncStorageOperations("read", false)
		return nil, &domain.StorageError{Operation: "read", Key: objectKey, Err: err}
	}
	defer func() { _ = rc.Close() }()

	table, err := ParseTable(rc, s.idField)
	s.metrics.IncStorageOperations("read", err == nil)
	s.metrics.ObserveStorageDuration("read", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", objectKey, err)
	}
	table.Key = name

	s.logger.Debug("result read", "key", name, "rows", len(table.Rows), "dropped", table.Dropped)
	return table, nil
}

// ReadAspect combines the summed sine and cosine tables of an aspect
// extraction into the circular mean angle per geometry, in radians.
func (s *ResultService) ReadAspect(ctx context.Context, suffix string) (*domain.ResultTable, error) {
	sin, err := s.ReadResult(ctx, domain.JoinName("s", "aspect", "sin", suffix))
	if err != nil {
		return nil, err
	}
	cos, err := s.ReadResult(ctx, domain.JoinName("s", "aspect", "cos", suffix))
	if err != nil {
		return nil, err
	}
	return CircularMean(sin, cos, domain.JoinName("s", "aspect", "topo", suffix)), nil
}

// CircularMean pairs the rows of two component tables by identifier and
// returns atan2(sin, cos) in a "mean" column. Identifiers missing from
// either table are dropped.
func CircularMean(sin, cos *domain.ResultTable, key string) *domain.ResultTable {
	cosByID := make(map[string]float64, len(cos.Rows))
	for _, r := range cos.Rows {
		if v, ok := r.Value(cos.Column); ok {
			cosByID[r.ID] = v
		}
	}

	out := &domain.ResultTable{
		Key:     key,
		Column:  "mean",
		Columns: []string{"id", "mean"},
		Rows:    []domain.ResultRow{},
	}
	for _, r := range sin.Rows {
		sv, ok := r.Value(sin.Column)
		cv, found := cosByID[r.ID]
		if !ok || !found {
			out.Dropped++
			continue
		}
		angle := math.Atan2(sv, cv)
		out.Rows = append(out.Rows, domain.ResultRow{
			ID:     r.ID,
			Values: map[string]*float64{"mean": &angle},
		})
	}
	return out
}

// ParseTable reads an exported CSV table. The statistic column is the
// first of mean, sum, mode and histogram present in the header; rows where
// it is empty are dropped.
func ParseTable(r io.Reader, idField string) (*domain.ResultTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty table: %w", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	column := ""
	for _, c := range statisticColumns {
		if slices.Contains(header, c) {
			column = c
			break
		}
	}
	if column == "" {
		return nil, fmt.Errorf("no statistic column in %v: %w", header, domain.ErrInvalidInput)
	}

	var rows []domain.ResultRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, parseRow(header, record, idField))
	}

	kept := domain.FilterNullRows(rows, column)
	return &domain.ResultTable{
		Column:  column,
		Columns: header,
		Rows:    kept,
		Dropped: len(rows) - len(kept),
	}, nil
}

func parseRow(header, record []string, idField string) domain.ResultRow {
	row := domain.ResultRow{Values: map[string]*float64{}}
	for i, name := range header {
		if i >= len(record) {
			break
		}
		cell := strings.TrimSpace(record[i])

		switch name {
		case idField:
			row.ID = cell
		case pipeline.StartDateField:
			if t, ok := ParseDate(cell); ok {
				row.StartDate = &t
			}
		case columnIndex, columnGeometry:
		default:
			if cell == "" {
				row.Values[name] = nil
				continue
			}
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				row.Values[name] = &v
				continue
			}
			if row.Raw == nil {
				row.Raw = map[string]string{}
			}
			row.Raw[name] = cell
		}
	}
	return row
}

var dateValue = regexp.MustCompile(`value=(-?\d+)`)

// ParseDate reads a date cell as written by the platform: either a
// {type=Date, value=<millis>} object, an RFC 3339 timestamp or a plain date.
func ParseDate(cell string) (time.Time, bool) {
	if m := dateValue.FindStringSubmatch(cell); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
