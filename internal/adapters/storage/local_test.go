package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/envextract/internal/domain"
)

func TestNewLocalStorage(t *testing.T) {
	storage := NewLocalStorage("/tmp/test")

	if storage == nil {
		t.Fatal("NewLocalStorage() returned nil")
	}

	if storage.basePath != "/tmp/test" {
		t.Errorf("basePath = %q, want %q", storage.basePath, "/tmp/test")
	}
}

func TestLocalStorageList(t *testing.T) {
	tmpDir := t.TempDir()

	testFiles := []string{
		"exports/s_tc_2011_ptsB.csv",
		"exports/rm_TRMM_pr_2001_2002_pts1.csv",
		"manifests/s_tc_2011_ptsB.json",
		"readme.txt",
	}

	for _, f := range testFiles {
		path := filepath.Join(tmpDir, f)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte("test"), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}

	storage := NewLocalStorage(tmpDir)

	tests := []struct {
		prefix string
		want   int
	}{
		{prefix: "", want: 4},
		{prefix: "exports", want: 2},
		{prefix: "manifests/", want: 1},
		{prefix: "receipts", want: 0},
	}
	for _, tt := range tests {
		t.Run("prefix "+tt.prefix, func(t *testing.T) {
			objects, err := storage.List(context.Background(), tt.prefix)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(objects) != tt.want {
				t.Errorf("len(objects) = %d, want %d", len(objects), tt.want)
			}
			for _, obj := range objects {
				if obj.Size != 4 {
					t.Errorf("object %s size = %d, want 4", obj.Key, obj.Size)
				}
				if obj.LastModified == 0 {
					t.Errorf("object %s has no modification time", obj.Key)
				}
			}
		})
	}
}

func TestLocalStorageListMissingDirectory(t *testing.T) {
	storage := NewLocalStorage(filepath.Join(t.TempDir(), "missing"))

	objects, err := storage.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("len(objects) = %d, want 0", len(objects))
	}
}

func TestLocalStoragePutAndRead(t *testing.T) {
	storage := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	exists, err := storage.Exists(ctx, "manifests/a.json")
	if err != nil || exists {
		t.Fatalf("Exists() before Put = %v, %v", exists, err)
	}

	if err := storage.Put(ctx, "manifests/a.json", []byte(`{"v":1}`), "application/json"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := storage.Put(ctx, "manifests/a.json", []byte(`{"v":2}`), "application/json"); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	exists, err = storage.Exists(ctx, "manifests/a.json")
	if err != nil || !exists {
		t.Fatalf("Exists() after Put = %v, %v", exists, err)
	}

	rc, err := storage.GetReader(ctx, "manifests/a.json")
	if err != nil {
		t.Fatalf("GetReader() error = %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != `{"v":2}` {
		t.Errorf("content = %s, want the second write", data)
	}

	objects, err := storage.List(ctx, "manifests")
	if err != nil || len(objects) != 1 {
		t.Errorf("List() = %v, %v, want only the object without temporary files", objects, err)
	}
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	storage := NewLocalStorage(t.TempDir())

	if err := storage.Put(context.Background(), "../outside.json", []byte("x"), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Put() error = %v, want ErrInvalidInput", err)
	}
	if _, err := storage.GetReader(context.Background(), "../../etc/passwd"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("GetReader() error = %v, want ErrInvalidInput", err)
	}
}

func TestLocalStorageFullPath(t *testing.T) {
	storage := NewLocalStorage("/data")

	path, err := storage.FullPath("exports/a.csv")
	if err != nil {
		t.Fatalf("FullPath() error = %v", err)
	}
	if want := filepath.Join("/data", "exports", "a.csv"); path != want {
		t.Errorf("FullPath() = %q, want %q", path, want)
	}
}
