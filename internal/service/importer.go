package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/canopyhq/canopy/internal/adapter/otel"
	"github.com/canopyhq/canopy/internal/domain"
	"github.com/canopyhq/canopy/internal/domain/capability"
	"github.com/canopyhq/canopy/internal/domain/entity"
	"github.com/canopyhq/canopy/internal/domain/entitytype"
)

// ImportRow is one parsed spreadsheet row before validation. Row is the
// 1-based data row number used in error reporting; the header is row 0.
type ImportRow struct {
	Row        int
	Name       string
	Slug       string
	Visibility string
	Fields     map[string]string
}

// reserved column headers; every other header must name a field id
const (
	colName       = "name"
	colSlug       = "slug"
	colVisibility = "visibility"
)

// Importer loads entity batches from CSV or XLSX files. A batch is
// all-or-nothing: every row is validated against the type schema and the
// slug index before any entity is written.
type Importer struct {
	entities *EntityStore
	types    *TypeService
	slugs    *SlugIndex
	log      *slog.Logger
}

// NewImporter creates an Importer.
func NewImporter(entities *EntityStore, types *TypeService, slugs *SlugIndex, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{entities: entities, types: types, slugs: slugs, log: log}
}

// ParseCSV reads rows from a CSV stream. The first record is the header.
func ParseCSV(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rowsFromRecords(records)
}

// ParseXLSX reads rows from the first sheet of an XLSX stream.
func ParseXLSX(r io.Reader) ([]ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rowsFromRecords(records)
}

func rowsFromRecords(records [][]string) ([]ImportRow, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("file has no header row")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]ImportRow, 0, len(records)-1)
	for i, record := range records[1:] {
		row := ImportRow{Row: i + 1, Fields: make(map[string]string)}
		for col, value := range record {
			if col >= len(header) {
				break
			}
			value = strings.TrimSpace(value)
			switch header[col] {
			case colName:
				row.Name = value
			case colSlug:
				row.Slug = value
			case colVisibility:
				row.Visibility = value
			default:
				if value != "" {
					row.Fields[header[col]] = value
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Import validates the whole batch and then creates one draft entity per
// row. Any validation failure anywhere in the batch aborts the import
// before the first write; the returned ValidationError carries every
// failing row.
func (imp *Importer) Import(ctx context.Context, caps capability.Capability, typeID uuid.UUID, orgID *uuid.UUID, rows []ImportRow, createdBy string) ([]*entity.Entity, error) {
	typ, err := imp.types.GetActive(ctx, caps, typeID)
	if err != nil {
		return nil, fmt.Errorf("entity type: %w", err)
	}

	ctx, span := otel.StartImportSpan(ctx, typ.Slug, len(rows))
	defer span.End()

	requests, err := imp.validateBatch(ctx, typ, orgID, rows, createdBy)
	if err != nil {
		return nil, err
	}

	created := make([]*entity.Entity, 0, len(requests))
	for i, req := range requests {
		e, err := imp.entities.Create(ctx, caps, req)
		if err != nil {
			// the batch passed validation, so this is a storage fault;
			// report how far the import got
			return created, fmt.Errorf("row %d (%s): %w", rows[i].Row, req.Slug, err)
		}
		created = append(created, e)
	}
	imp.log.Info("bulk import completed", "type", typ.Slug, "rows", len(created))
	return created, nil
}

func (imp *Importer) validateBatch(ctx context.Context, typ *entitytype.EntityType, orgID *uuid.UUID, rows []ImportRow, createdBy string) ([]entity.CreateRequest, error) {
	verr := &domain.ValidationError{}
	seenSlugs := make(map[string]int, len(rows))
	requests := make([]entity.CreateRequest, 0, len(rows))

	for _, row := range rows {
		if row.Name == "" {
			verr.AddRow(row.Row, colName, "required")
		}
		switch row.Slug {
		case "":
			verr.AddRow(row.Row, colSlug, "required")
		default:
			if first, dup := seenSlugs[row.Slug]; dup {
				verr.AddRow(row.Row, colSlug, fmt.Sprintf("duplicate of row %d", first))
			} else {
				seenSlugs[row.Slug] = row.Row
				taken, err := imp.slugs.Exists(ctx, orgID, typ.Slug, row.Slug)
				if err != nil {
					return nil, fmt.Errorf("slug index check: %w", err)
				}
				if taken {
					verr.AddRow(row.Row, colSlug, "already in use")
				}
			}
		}

		visibility := entity.Visibility(row.Visibility)
		if row.Visibility != "" {
			switch visibility {
			case entity.VisibilityPublic, entity.VisibilityPlatform, entity.VisibilityMembers:
			default:
				verr.AddRow(row.Row, colVisibility, fmt.Sprintf("unknown visibility %q", row.Visibility))
			}
		}

		data, rowErr := coerceRowData(typ, row)
		if rowErr != nil {
			verr.Fields = append(verr.Fields, rowErr.Fields...)
		}
		if vdErr := typ.ValidateData(data); vdErr != nil {
			var vd *domain.ValidationError
			if errors.As(vdErr, &vd) {
				for _, f := range vd.Fields {
					verr.AddRow(row.Row, f.Field, f.Message)
				}
			} else {
				verr.AddRow(row.Row, "data", vdErr.Error())
			}
		}

		requests = append(requests, entity.CreateRequest{
			EntityTypeID:   typ.ID,
			OrganizationID: orgID,
			Name:           row.Name,
			Slug:           row.Slug,
			Visibility:     visibility,
			Data:           data,
			CreatedBy:      createdBy,
		})
	}

	if !verr.Empty() {
		return nil, verr
	}
	return requests, nil
}

// coerceRowData converts cell strings into the value types the schema
// expects. Unknown columns pass through as strings so ValidateData can
// reject them with the row's other failures.
func coerceRowData(typ *entitytype.EntityType, row ImportRow) (map[string]any, *domain.ValidationError) {
	data := make(map[string]any, len(row.Fields))
	verr := &domain.ValidationError{}
	for id, raw := range row.Fields {
		field, ok := typ.FieldByID(id)
		if !ok {
			data[id] = raw
			continue
		}
		switch field.Type {
		case entitytype.FieldNumber:
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				verr.AddRow(row.Row, id, fmt.Sprintf("not a number: %q", raw))
				continue
			}
			data[id] = n
		case entitytype.FieldBoolean:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				verr.AddRow(row.Row, id, fmt.Sprintf("not a boolean: %q", raw))
				continue
			}
			data[id] = b
		default:
			data[id] = raw
		}
	}
	if verr.Empty() {
		return data, nil
	}
	return data, verr
}
