package mirnaprep

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"google.golang.org/api/iterator"
)

// IsGoogleStorage reports whether p points into a Google Storage bucket.
func IsGoogleStorage(p string) bool {
	return strings.HasPrefix(p, "gs://")
}

// NeedsGoogleStorage reports whether any of the paths are gs:// paths, in
// which case the caller should initialize a storage client.
func NeedsGoogleStorage(paths ...string) bool {
	for _, p := range paths {
		if IsGoogleStorage(p) {
			return true
		}
	}
	return false
}

func splitGoogleStoragePath(p string) (bucket, object string, err error) {
	pathParts := strings.SplitN(strings.TrimPrefix(p, "gs://"), "/", 2)
	if len(pathParts) < 1 || pathParts[0] == "" {
		return "", "", fmt.Errorf("Could not find a bucket name in %s", p)
	}
	if len(pathParts) == 1 {
		return pathParts[0], "", nil
	}
	return pathParts[0], pathParts[1], nil
}

// BaseName returns the final element of a local or gs:// path.
func BaseName(p string) string {
	if IsGoogleStorage(p) {
		return path.Base(p)
	}
	return filepath.Base(p)
}

// Open opens a local file or a gs:// object for reading. client may be nil
// when p is local.
func Open(ctx context.Context, p string, client *storage.Client) (io.ReadCloser, error) {
	if !IsGoogleStorage(p) {
		f, err := os.Open(p)
		if err != nil {
			return nil, pfx.Err(err)
		}
		return f, nil
	}

	if client == nil {
		return nil, pfx.Err(fmt.Errorf("%s: no Google Storage client was initialized", p))
	}

	bucketName, objectName, err := splitGoogleStoragePath(p)
	if err != nil {
		return nil, pfx.Err(err)
	}

	rdr, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", p, err))
	}

	return rdr, nil
}

// ReadAll reads the whole of p, transparently decompressing it.
func ReadAll(ctx context.Context, p string, client *storage.Client) ([]byte, error) {
	rc, err := Open(ctx, p, client)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", p, err))
	}

	return Decompress(raw)
}

// List returns the files directly inside dir, sorted by path. Subdirectories
// are not descended into.
func List(ctx context.Context, dir string, client *storage.Client) ([]string, error) {
	if IsGoogleStorage(dir) {
		return listGoogleStorage(ctx, dir, client)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)

	return out, nil
}

func listGoogleStorage(ctx context.Context, dir string, client *storage.Client) ([]string, error) {
	if client == nil {
		return nil, pfx.Err(fmt.Errorf("%s: no Google Storage client was initialized", dir))
	}

	bucketName, prefix, err := splitGoogleStoragePath(dir)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	out := make([]string, 0)
	it := client.Bucket(bucketName).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		} else if err != nil {
			return nil, pfx.Err(err)
		}

		// Synthetic directory entries only carry a Prefix
		if attrs.Name == "" {
			continue
		}

		out = append(out, "gs://"+bucketName+"/"+attrs.Name)
	}
	sort.Strings(out)

	return out, nil
}
