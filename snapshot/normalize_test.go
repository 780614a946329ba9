package snapshot

import (
	"testing"

	"github.com/use-agent/scrollsnap/models"
	"github.com/use-agent/scrollsnap/storage"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/html/body/div[2]/span[1]", "/html/body/div/span"},
		{"//ul[@id='menu']/li[3]", "//ul[@id='menu']/li"},
		{"//a[@id='login']", "//a[@id='login']"},
		{"/html", "/html"},
		{"", ""},
		{"/html/body/12/p", "/html/body/p"},
		{"[[1]2]", ""},
		{"[1/2]", ""},
		{"//input[@name='q2']", "//input[@name='q2']"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := Normalize(got); again != got {
				t.Errorf("Normalize not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestSanitizeSite(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"www.example.com", "example_com"},
		{"example.com", "example_com"},
		{"shop.www.example.com", "shop_www_example_com"},
		{"my-site_01", "my-site_01"},
		{"a/b c", "a_b_c"},
	}
	for _, tt := range tests {
		if got := SanitizeSite(tt.in); got != tt.want {
			t.Errorf("SanitizeSite(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDiff(t *testing.T) {
	baseline := &storage.Table{
		Columns: []string{"webElementId", "original_xpath", "xpath", "text"},
		Rows: [][]string{
			{"1", "/html/body/p[1]", "/html/body/p", "a"},
			{"1", "/html/body/p[1]", "/html/body/p", "a"},
			{"2", "/html/body/p[2]", "/html/body/p", "b"},
			{"4", "/html/body/p[4]", "/html/body/p", "x\ny"},
		},
	}

	tests := []struct {
		name    string
		current []models.Record
		wantIDs []string
	}{
		{
			name: "all present",
			current: []models.Record{
				models.NewRecord("webElementId", "2", "xpath", "/html/body/p", "text", "b", "original_xpath", "/x"),
				models.NewRecord("webElementId", "1", "xpath", "/html/body/p", "text", "a"),
			},
		},
		{
			name: "changed text",
			current: []models.Record{
				models.NewRecord("webElementId", "1", "xpath", "/html/body/p", "text", "a"),
				models.NewRecord("webElementId", "2", "xpath", "/html/body/p", "text", "B"),
			},
			wantIDs: []string{"2"},
		},
		{
			name: "new element twice",
			current: []models.Record{
				models.NewRecord("webElementId", "3", "xpath", "/html/body/p", "text", "c"),
				models.NewRecord("webElementId", "3", "xpath", "/html/body/p", "text", "c"),
			},
			wantIDs: []string{"3", "3"},
		},
		{
			name: "CRLF matches stored LF",
			current: []models.Record{
				models.NewRecord("webElementId", "4", "xpath", "/html/body/p", "text", "x\r\ny"),
			},
		},
		{
			name: "extra columns do not matter",
			current: []models.Record{
				models.NewRecord("webElementId", "1", "xpath", "/html/body/p", "text", "a", "x", "99"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, err := Diff(baseline, tt.current, "original_xpath")
			if err != nil {
				t.Fatalf("Diff: %v", err)
			}
			if len(delta) != len(tt.wantIDs) {
				t.Fatalf("delta has %d rows, want %d", len(delta), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got := delta[i].Value("webElementId"); got != id {
					t.Errorf("delta[%d] id = %q, want %q", i, got, id)
				}
			}
		})
	}
}

func TestDiff_NoSharedColumns(t *testing.T) {
	baseline := &storage.Table{Columns: []string{"original_xpath"}, Rows: [][]string{{"/a"}}}
	current := []models.Record{models.NewRecord("other", "1")}
	if _, err := Diff(baseline, current, "original_xpath"); err != errNoSharedColumns {
		t.Errorf("err = %v, want errNoSharedColumns", err)
	}
}

func TestRowKeyIsUnambiguous(t *testing.T) {
	a := []string{"ab", "c"}
	b := []string{"a", "bc"}
	ka := rowKey(2, func(i int) string { return a[i] })
	kb := rowKey(2, func(i int) string { return b[i] })
	if ka == kb {
		t.Errorf("rowKey collision: %q", ka)
	}
}
