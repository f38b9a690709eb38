package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type modelRow struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type modelRows []modelRow

func (r modelRows) Table() ([]string, [][]string) {
	rows := make([][]string, len(r))
	for i, m := range r {
		rows[i] = []string{m.ID, FormatPercent(m.Score)}
	}
	return []string{"ID", "SCORE"}, rows
}

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{
		"name":  "test",
		"value": 123,
	}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}

	if result["name"] != "test" {
		t.Errorf("name = %v, want %q", result["name"], "test")
	}
}

func TestOutput_YAML(t *testing.T) {
	var buf bytes.Buffer

	err := Output(modelRow{ID: "m1", Score: 0.5}, OutputOptions{
		Format: FormatYAML,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "id: m1") || !strings.Contains(output, "score: 0.5") {
		t.Errorf("Output should use json field names, got: %s", output)
	}
}

func TestOutput_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer

	// Empty format should default to YAML
	err := Output(map[string]string{"key": "value"}, OutputOptions{
		Format: "",
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	if !strings.Contains(buf.String(), "key: value") {
		t.Errorf("Default format should be YAML, got: %s", buf.String())
	}
}

func TestOutput_Raw(t *testing.T) {
	var buf bytes.Buffer
	if err := Output([]byte("raw binary data"), OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "raw binary data" {
		t.Errorf("bytes = %q", buf.String())
	}

	buf.Reset()
	if err := Output("line", OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "line\n" {
		t.Errorf("string = %q", buf.String())
	}

	buf.Reset()
	// Non-string/bytes should fall back to YAML
	if err := Output(map[string]int{"count": 42}, OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "count: 42") {
		t.Errorf("Output should contain YAML, got: %s", buf.String())
	}
}

func TestOutput_Table(t *testing.T) {
	var buf bytes.Buffer
	rows := modelRows{{ID: "m1", Score: 0.9}, {ID: "m2", Score: 0.75}}
	if err := Output(rows, OutputOptions{Format: FormatTable, Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"ID", "SCORE", "m1", "90.0%", "m2", "75.0%", "╭"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	// Results without a table form fall back to YAML.
	if err := Output(map[string]int{"count": 1}, OutputOptions{Format: FormatTable, Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "count: 1") {
		t.Errorf("fallback = %s", buf.String())
	}
}

func TestOutput_Query(t *testing.T) {
	var buf bytes.Buffer
	rows := modelRows{{ID: "m1", Score: 0.9}, {ID: "m2", Score: 0.75}}
	err := Output(rows, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
		Query:  ".[] | select(.score > 0.8) | .id",
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != `"m1"` {
		t.Errorf("query output = %q", buf.String())
	}

	if err := Output(rows, OutputOptions{Writer: &buf, Query: ".[] |"}); err == nil {
		t.Error("invalid jq expression should fail")
	}
	if err := Output(rows, OutputOptions{Writer: &buf, Query: ".id"}); err == nil {
		t.Error("indexing an array by key should fail")
	}
}

func TestQuery_Multiple(t *testing.T) {
	got, err := Query(map[string]any{"a": 1, "b": []int{2, 3}}, ".b[]")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != float64(2) || got[1] != float64(3) {
		t.Errorf("Query = %v", got)
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer

	err := Output("data", OutputOptions{
		Format: "invalid",
		Writer: &buf,
	})
	if err == nil {
		t.Error("Output should fail for unsupported format")
	}
}

func TestOutput_ToFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "output.json")

	err := Output(map[string]string{"key": "value"}, OutputOptions{
		Format: FormatJSON,
		File:   filePath,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(content, &result); err != nil {
		t.Fatalf("Invalid JSON in file: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("key = %q, want %q", result["key"], "value")
	}
}

func TestOutput_JSONIndent(t *testing.T) {
	var buf bytes.Buffer

	err := Output(map[string]string{"key": "value"}, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
		Indent: "    ", // 4 spaces
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	if !strings.Contains(buf.String(), "    ") {
		t.Errorf("Output should be indented, got: %s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"", "yaml", "json", "table", "raw"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) = %v", s, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestRenderTable(t *testing.T) {
	if got := RenderTable(nil, nil, nil); got != "" {
		t.Errorf("no headers = %q", got)
	}
	out := RenderTable([]string{"A", "B", "C"}, [][]string{{"1"}, {"x", "y", "z"}}, []Align{AlignLeft, AlignRight})
	lines := strings.Split(out, "\n")
	// top border, header, separator, two rows, bottom border
	if len(lines) != 6 {
		t.Fatalf("lines = %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[4], "x") || !strings.Contains(lines[4], "z") {
		t.Errorf("row = %q", lines[4])
	}
}
