package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/use-agent/scrollsnap/models"
)

func TestCSVStore_WriteRead(t *testing.T) {
	s := NewCSVStore()
	path := filepath.Join(t.TempDir(), "site", "scroll_0", "xpath_site_0.csv")

	ok, err := s.Exists(path)
	if err != nil || ok {
		t.Fatalf("Exists before write = %v, %v", ok, err)
	}

	records := []models.Record{
		models.NewRecord("webElementId", "1", "xpath", "//p", "text", "a, \"quoted\"\nline"),
		models.NewRecord("webElementId", "2", "xpath", "//div", "text", "b", "extra", "x"),
	}
	if err := s.Write(path, TableFromRecords(records)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ok, err = s.Exists(path)
	if err != nil || !ok {
		t.Fatalf("Exists after write = %v, %v", ok, err)
	}

	got, err := s.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if strings.Join(got.Columns, ",") != "webElementId,xpath,text,extra" {
		t.Errorf("columns = %v", got.Columns)
	}
	back := got.Records()
	if back[0].Value("text") != "a, \"quoted\"\nline" {
		t.Errorf("text = %q", back[0].Value("text"))
	}
	if v, ok := back[0].Get("extra"); !ok || v != "" {
		t.Errorf("extra = %q, %v; want empty and present", v, ok)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestCSVStore_ReadPadsShortRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	if err := os.WriteFile(path, []byte("a,b,c\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := NewCSVStore().Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Len() != 1 || len(got.Rows[0]) != 3 || got.Rows[0][2] != "" {
		t.Errorf("rows = %v", got.Rows)
	}
}

func TestTableFromRecords_ColumnOrder(t *testing.T) {
	tbl := TableFromRecords([]models.Record{
		models.NewRecord("b", "1"),
		models.NewRecord("a", "2", "b", "3"),
	})
	if strings.Join(tbl.Columns, ",") != "b,a" {
		t.Errorf("columns = %v", tbl.Columns)
	}
	if tbl.ColumnIndex("a") != 1 || tbl.ColumnIndex("zzz") != -1 {
		t.Errorf("ColumnIndex mismatch")
	}
	if tbl.Rows[0][1] != "" {
		t.Errorf("missing value = %q, want empty", tbl.Rows[0][1])
	}
}
