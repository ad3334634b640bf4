package domains

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

func sameRect(a, b types.Rect) bool {
	const eps = 1e-9
	return math.Abs(a.X1-b.X1) < eps && math.Abs(a.Y1-b.Y1) < eps &&
		math.Abs(a.X2-b.X2) < eps && math.Abs(a.Y2-b.Y2) < eps
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, ext := range []string{".json", ".yml", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "domains"+ext)

			src := NewRegistry()
			mustAdd(t, src, "gate", types.Rect{X1: 0.1, Y1: 0.1, X2: 0.3, Y2: 0.3})
			mustAdd(t, src, "lobby", types.Rect{X1: 0.5, Y1: 0.25, X2: 0.875, Y2: 0.75})

			if err := src.Save(path); err != nil {
				t.Fatalf("save: %v", err)
			}

			dst := NewRegistry()
			if err := dst.Load(path); err != nil {
				t.Fatalf("load: %v", err)
			}

			want := src.List()
			got := dst.List()
			if len(got) != len(want) {
				t.Fatalf("expected %d domains, got %d", len(want), len(got))
			}
			for i := range want {
				if got[i].Name != want[i].Name || !sameRect(got[i].Rect, want[i].Rect) {
					t.Fatalf("domain %d differs: got %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestSaveUnsupportedExtension(t *testing.T) {
	r := NewRegistry()
	path := filepath.Join(t.TempDir(), "domains.toml")

	if err := r.Save(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("file written despite unsupported extension")
	}
}

func TestLoadUnsupportedExtensionBeforeIO(t *testing.T) {
	r := NewRegistry()
	// The path does not exist; the format check must fire first.
	err := r.Load(filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoadRejectsPartialState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.json")
	malformed := `{
  "alpha": {"x1": 0.1, "y1": 0.1, "x2": 0.2, "y2": 0.2},
  "bravo": {"x1": 0.3, "y1": 0.3, "x2": 0.4, "y2": 0.4},
  "broken": {"x1": 0.5, "y1": 0.5, "x2": 0.6}
}`
	if err := os.WriteFile(path, []byte(malformed), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	r := NewRegistry()
	if err := r.Load(path); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	if n := r.Len(); n != 0 {
		t.Fatalf("expected zero domains after rejected load, got %d", n)
	}
}

func TestLoadRejectsDuplicateAgainstExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.yaml")

	src := NewRegistry()
	mustAdd(t, src, "gate", types.Rect{X1: 0.1, Y1: 0.1, X2: 0.3, Y2: 0.3})
	mustAdd(t, src, "patio", types.Rect{X1: 0.6, Y1: 0.6, X2: 0.9, Y2: 0.9})
	if err := src.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	dst := NewRegistry()
	mustAdd(t, dst, "gate", types.Rect{X2: 1, Y2: 1})

	if err := dst.Load(path); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	// Neither record applied: "patio" must not have slipped in.
	if n := dst.Len(); n != 1 {
		t.Fatalf("expected 1 domain after rejected load, got %d", n)
	}
}

func TestLoadUnparsableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	r := NewRegistry()
	if err := r.Load(path); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}
