package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestBundleSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{"topology.pdb": "MODEL\n", "Info.log": "ok"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	dest := filepath.Join(t.TempDir(), "out.tar.gz")

	added, err := Bundle(dir, []string{"topology.pdb", "sub/Info.log", "absent.dat", "topology.pdb"}, dest)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(added) != "[topology.pdb Info.log]" {
		t.Fatalf("added %v", added)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(zr)
	got := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(tr)
		got[hdr.Name] = string(b)
	}
	if len(got) != 2 || got["topology.pdb"] != "MODEL\n" || got["Info.log"] != "ok" {
		t.Fatalf("archive holds %v", got)
	}
}

func TestBundleEmpty(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "empty.tar.gz")
	added, err := Bundle(t.TempDir(), []string{"nothing"}, dest)
	if err != nil || len(added) != 0 {
		t.Fatalf("added=%v err=%v", added, err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("empty archive not written: %v", err)
	}
}

func TestReadLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Info.log")
	if err := os.WriteFile(path, []byte("first line\nÅngström\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	whole, err := ReadLog(path, 0)
	if err != nil || whole != "first line\nÅngström\n" {
		t.Fatalf("ReadLog = %q, %v", whole, err)
	}
	// The last 10 bytes start inside the two-byte "Å".
	tail, err := ReadLog(path, 10)
	if err != nil || tail != "ngström\n" {
		t.Fatalf("tail = %q, %v", tail, err)
	}
	if _, err := ReadLog(filepath.Join(t.TempDir(), "none"), 0); err == nil {
		t.Fatal("expected error for missing log")
	}
}
