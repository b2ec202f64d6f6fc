package memory

import (
	"context"
	"testing"

	"treasury/internal/export"
)

func TestStore_PublishTable(t *testing.T) {
	s := New()
	ctx := context.Background()

	tbl := export.Table{Headers: []string{"Bank", "Limit"}, Rows: [][]any{{"Alpha", 1000.0}}}
	ref, err := s.PublishTable(ctx, "bank-utilization-2024-06-30", tbl)
	if err != nil {
		t.Fatalf("PublishTable() error = %v", err)
	}
	if ref != "mem:bank-utilization-2024-06-30!2" {
		t.Errorf("ref = %q", ref)
	}

	// republishing replaces without duplicating the title
	tbl.Rows = append(tbl.Rows, []any{"Beta", 2000.0})
	if _, err := s.PublishTable(ctx, "bank-utilization-2024-06-30", tbl); err != nil {
		t.Fatal(err)
	}
	got, ok := s.Table("bank-utilization-2024-06-30")
	if !ok || len(got.Rows) != 2 {
		t.Errorf("Table() = %+v, %v", got, ok)
	}
	if titles := s.Titles(); len(titles) != 1 {
		t.Errorf("Titles() = %v", titles)
	}

	if _, err := s.PublishTable(ctx, "", tbl); err == nil {
		t.Error("expected error for empty title")
	}
}
