package mirnaprep

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGoogleStoragePaths(t *testing.T) {
	if !IsGoogleStorage("gs://bucket/a") || IsGoogleStorage("/tmp/gs://a") {
		t.Error("IsGoogleStorage misclassified a path")
	}
	if !NeedsGoogleStorage("/local", "gs://bucket/x") || NeedsGoogleStorage("/a", "b") {
		t.Error("NeedsGoogleStorage misclassified paths")
	}

	for _, v := range []struct {
		Path, Bucket, Object string
		Err                  bool
	}{
		{"gs://bucket/dir/file.csv", "bucket", "dir/file.csv", false},
		{"gs://bucket", "bucket", "", false},
		{"gs://", "", "", true},
	} {
		bucket, object, err := splitGoogleStoragePath(v.Path)
		if (err != nil) != v.Err || bucket != v.Bucket || object != v.Object {
			t.Errorf("%s: got %q %q %v", v.Path, bucket, object, err)
		}
	}

	if BaseName("gs://bucket/dir/file.csv") != "file.csv" || BaseName(filepath.Join("a", "b.csv")) != "b.csv" {
		t.Error("BaseName returned the wrong element")
	}
}

func TestLocalListOpenReadAll(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("plain"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := os.Create(filepath.Join(dir, "a.txt.gz"))
	if err != nil {
		t.Fatal(err)
	}
	gw := gzip.NewWriter(f)
	io.WriteString(gw, "compressed")
	gw.Close()
	f.Close()

	paths, err := List(ctx, dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{filepath.Join(dir, "a.txt.gz"), filepath.Join(dir, "b.txt")}
	if diff := cmp.Diff(expected, paths); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}

	got, err := ReadAll(ctx, paths[0], nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "compressed" {
		t.Errorf("got %q", got)
	}

	rc, err := Open(ctx, paths[1], nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != "plain" {
		t.Errorf("got %q", raw)
	}

	if _, err := Open(ctx, filepath.Join(dir, "missing"), nil); err == nil {
		t.Error("expected an error for a missing file")
	}
	if _, err := Open(ctx, "gs://bucket/object", nil); err == nil {
		t.Error("expected an error without a storage client")
	}
}

func TestExpandHome(t *testing.T) {
	if ExpandHome("gs://bucket/~/x") != "gs://bucket/~/x" {
		t.Error("gs paths must not be expanded")
	}
	if ExpandHome("/a/~/b") != "/a/~/b" {
		t.Error("only a leading ~ is expanded")
	}
	if got := ExpandHome("~/data"); got == "~/data" {
		t.Skip("no home directory available")
	} else if filepath.Base(got) != "data" || !filepath.IsAbs(got) {
		t.Errorf("got %q", got)
	}
}
