package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/canopyhq/canopy/internal/domain"
	"github.com/canopyhq/canopy/internal/domain/entity"
	"github.com/canopyhq/canopy/internal/domain/entitytype"
)

func typedField(id string, ft entitytype.FieldType) entitytype.Field {
	return entitytype.Field{ID: id, Name: id, Type: ft}
}

func newTestImporter(t *testing.T) (*Importer, *materializerFixture) {
	t.Helper()
	f := newMaterializerFixture(t)
	slugs := NewSlugIndex(f.gate)
	return NewImporter(f.entities, f.types, slugs, nil), f
}

func TestParseCSVMapsHeadersToFields(t *testing.T) {
	csvData := "name,slug,visibility,summary,secret\n" +
		"First Guide,first-guide,public,hello,s1\n" +
		"Second Guide,second-guide,,,\n"

	rows, err := ParseCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: %d", len(rows))
	}
	first := rows[0]
	if first.Row != 1 || first.Name != "First Guide" || first.Slug != "first-guide" || first.Visibility != "public" {
		t.Fatalf("first row mis-parsed: %+v", first)
	}
	if first.Fields["summary"] != "hello" || first.Fields["secret"] != "s1" {
		t.Fatalf("field columns mis-parsed: %+v", first.Fields)
	}
	// empty cells never become field entries
	if len(rows[1].Fields) != 0 {
		t.Fatalf("empty cells kept: %+v", rows[1].Fields)
	}
}

func TestParseXLSXFirstSheet(t *testing.T) {
	x := excelize.NewFile()
	sheet := x.GetSheetName(0)
	for i, row := range [][]any{
		{"name", "slug", "summary"},
		{"Sheet Guide", "sheet-guide", "from xlsx"},
	} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := x.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := x.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	rows, err := ParseXLSX(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 1 || rows[0].Slug != "sheet-guide" || rows[0].Fields["summary"] != "from xlsx" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestImportCreatesDrafts(t *testing.T) {
	ctx := context.Background()
	imp, f := newTestImporter(t)

	rows, err := ParseCSV(strings.NewReader(
		"name,slug,summary\nAlpha,alpha,first\nBeta,beta,second\n"))
	if err != nil {
		t.Fatal(err)
	}

	created, err := imp.Import(ctx, adminCaps(), f.typ.ID, nil, rows, "importer@example.com")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created: %d", len(created))
	}
	for _, e := range created {
		if e.Status != entity.StatusDraft || e.Version != 1 {
			t.Errorf("imported entity not a v1 draft: %+v", e)
		}
	}

	got, err := f.entities.ReadLatest(ctx, adminCaps(), created[0].ID)
	if err != nil || got.Data["summary"] != "first" {
		t.Fatalf("imported entity not readable: %v %+v", err, got)
	}
}

func TestImportIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	imp, f := newTestImporter(t)

	rows, err := ParseCSV(strings.NewReader(
		"name,slug,summary\nGood,good,ok\n,missing-name,bad\nAlso Good,good,dup\n"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = imp.Import(ctx, adminCaps(), f.typ.ID, nil, rows, "importer@example.com")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}

	var sawRow2, sawRow3 bool
	for _, fe := range verr.Fields {
		switch fe.Row {
		case 2:
			sawRow2 = true
		case 3:
			sawRow3 = true
		}
	}
	if !sawRow2 || !sawRow3 {
		t.Fatalf("failures not attributed to rows: %+v", verr.Fields)
	}

	// nothing may have been written, including the valid first row
	objects, err := f.gate.ListFiles(ctx, rootStubs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 0 {
		t.Fatalf("batch with failures wrote %d objects", len(objects))
	}
}

func TestImportRejectsTakenSlug(t *testing.T) {
	ctx := context.Background()
	imp, f := newTestImporter(t)
	f.publish(t, nil, "taken", entity.VisibilityPublic, map[string]any{"summary": "existing"})

	rows, err := ParseCSV(strings.NewReader("name,slug\nClash,taken\n"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = imp.Import(ctx, adminCaps(), f.typ.ID, nil, rows, "importer@example.com")
	if !domain.IsValidation(err) {
		t.Fatalf("want validation failure for taken slug, got %v", err)
	}
}

func TestImportCoercesTypedColumns(t *testing.T) {
	ctx := context.Background()
	imp, f := newTestImporter(t)

	// extend the schema with typed fields
	f.typ.Fields = append(f.typ.Fields,
		typedField("stars", entitytype.FieldNumber),
		typedField("featured", entitytype.FieldBoolean),
	)
	if err := f.types.Save(ctx, adminCaps(), f.typ); err != nil {
		t.Fatal(err)
	}

	rows, err := ParseCSV(strings.NewReader(
		"name,slug,stars,featured\nTyped,typed,4.5,true\n"))
	if err != nil {
		t.Fatal(err)
	}
	created, err := imp.Import(ctx, adminCaps(), f.typ.ID, nil, rows, "importer@example.com")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	data := created[0].Data
	if data["stars"] != 4.5 || data["featured"] != true {
		t.Fatalf("cells not coerced: %+v", data)
	}

	rows, err = ParseCSV(strings.NewReader("name,slug,stars\nBad,bad-stars,many\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := imp.Import(ctx, adminCaps(), f.typ.ID, nil, rows, "importer@example.com"); !domain.IsValidation(err) {
		t.Fatalf("want validation failure for non-numeric cell, got %v", err)
	}
}
