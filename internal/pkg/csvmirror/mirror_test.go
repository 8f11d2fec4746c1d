package csvmirror

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestWriteProblemsHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(filepath.Join(dir, "problems.csv"), filepath.Join(dir, "students.csv"), zerolog.Nop())

	row := make([]string, len(ProblemColumns))
	row[0] = "1"
	row[1] = "Water, Filter"
	row[14] = "pending"
	if err := e.WriteProblems([][]string{row}); err != nil {
		t.Fatalf("WriteProblems: %v", err)
	}

	data, err := os.ReadFile(e.ProblemsPath())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(ProblemColumns, ",") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], `1,"Water, Filter",`) {
		t.Fatalf("row = %q", lines[1])
	}
}

func TestWriteStudentsEmptyKeepsHeader(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(filepath.Join(dir, "p.csv"), filepath.Join(dir, "nested", "s.csv"), zerolog.Nop())

	if err := e.WriteStudents(nil); err != nil {
		t.Fatalf("WriteStudents: %v", err)
	}
	data, err := os.ReadFile(e.StudentsPath())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "roll_no,name,branch,batch,dob,email" {
		t.Fatalf("content = %q", got)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "nested"))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestWritePadsShortRows(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, []string{"a", "b", "c"}, [][]string{{"1"}, {"1", "2", "3", "4"}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "a,b,c\n1,,\n1,2,3\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestConcurrentRefreshesLeaveValidFile(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(filepath.Join(dir, "problems.csv"), filepath.Join(dir, "students.csv"), zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rows := make([][]string, n+1)
			for j := range rows {
				rows[j] = []string{"x"}
			}
			if err := e.WriteProblems(rows); err != nil {
				t.Errorf("WriteProblems: %v", err)
			}
		}(i)
	}
	wg.Wait()

	records, err := ReadFile(e.ProblemsPath())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) < 1 || len(records) > 8 {
		t.Fatalf("unexpected record count %d", len(records))
	}
}

func TestReadNormalizesHeader(t *testing.T) {
	in := "\ufeffRoll_No , Name,Password_Changed\nR1,Asha,yes\nR2,Ravi\n"
	records, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Get("roll_no") != "R1" || records[0].Get("password_changed") != "yes" {
		t.Fatalf("first record = %v", records[0])
	}
	if records[1].Get("password_changed") != "" {
		t.Fatalf("missing column should read empty, got %q", records[1].Get("password_changed"))
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.csv"))
	if !errors.Is(err, ErrNoMirror) {
		t.Fatalf("expected ErrNoMirror, got %v", err)
	}
}
