package workspace

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	dir, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	sq, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{"dir": dir, "sqlite": sq}
}

func TestReadWriteRoundTrip(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			in := map[string]any{"city": "Paris", "score": float64(88)}
			require.NoError(t, s.WriteJSON(NamespaceData, "destination-analysis", in))

			var out map[string]any
			require.NoError(t, s.ReadJSON(NamespaceData, "destination-analysis", &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			var out map[string]any
			err := s.ReadJSON(NamespaceData, "nope", &out)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestUnknownNamespaceRejected(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.WriteJSON("scratch", "x", map[string]any{"a": 1})
			require.Error(t, err)
			var ioErr *IOError
			assert.True(t, errors.As(err, &ioErr))
		})
	}
}

func TestListNamespaceSorted(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, n := range []string{"zeta", "alpha", "mid"} {
				require.NoError(t, s.WriteJSON(NamespaceContent, n, map[string]any{"v": n}))
			}
			names, err := s.ListNamespace(NamespaceContent)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
		})
	}
}

func TestListEmptyNamespace(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			names, err := s.ListNamespace(NamespaceDocs)
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

// Writers replacing the same artifact while readers poll must never surface
// a decode error: the write is atomic, so a reader sees old or new, never a
// torn body.
func TestConcurrentReadersSeeWholeValues(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.WriteJSON(NamespaceData, "hot", map[string]any{"gen": float64(0)}))

			var wg sync.WaitGroup
			stop := make(chan struct{})
			errCh := make(chan error, 1)

			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					var out map[string]any
					if err := s.ReadJSON(NamespaceData, "hot", &out); err != nil {
						select {
						case errCh <- err:
						default:
						}
						return
					}
					if _, ok := out["gen"]; !ok {
						select {
						case errCh <- fmt.Errorf("partial value observed: %v", out):
						default:
						}
						return
					}
				}
			}()

			for i := 1; i <= 50; i++ {
				require.NoError(t, s.WriteJSON(NamespaceData, "hot", map[string]any{"gen": float64(i)}))
			}
			close(stop)
			wg.Wait()

			select {
			case err := <-errCh:
				t.Fatalf("reader observed bad state: %v", err)
			default:
			}
		})
	}
}

func TestHasData(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, false},
		{"empty map", map[string]any{}, false},
		{"length-only map", map[string]any{"length": float64(3)}, false},
		{"length plus payload", map[string]any{"length": float64(3), "city": "Rome"}, true},
		{"populated map", map[string]any{"city": "Paris"}, true},
		{"empty slice", []any{}, false},
		{"populated slice", []any{"a"}, true},
		{"scalar", "text", false},
		{"number", float64(7), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HasData(tc.in))
		})
	}
}

func TestLoadValidated(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.WriteJSON(NamespaceData, "present", map[string]any{"k": "v"}))
			require.NoError(t, s.WriteJSON(NamespaceData, "hollow", map[string]any{}))

			v, err := Load[map[string]any](s, NamespaceData, "present")
			require.NoError(t, err)
			assert.True(t, v.Valid())
			assert.Equal(t, "v", v.Value()["k"])

			v, err = Load[map[string]any](s, NamespaceData, "hollow")
			require.NoError(t, err)
			assert.False(t, v.Valid())

			v, err = Load[map[string]any](s, NamespaceData, "absent")
			require.NoError(t, err)
			assert.False(t, v.Valid())
		})
	}
}
