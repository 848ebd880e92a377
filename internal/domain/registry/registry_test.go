package registry_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/propensity/internal/domain/features"
	"github.com/okian/propensity/internal/domain/registry"
	. "github.com/smartystreets/goconvey/convey"
)

// memStore is an in-memory Store that counts opens per identifier.
type memStore struct {
	mu      sync.Mutex
	files   map[string]string
	opens   map[string]int
	listErr error
}

func newMemStore(files map[string]string) *memStore {
	return &memStore{files: files, opens: make(map[string]int)}
}

func (s *memStore) List(context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for id := range s.files {
		out = append(out, id)
	}
	return out, nil
}

func (s *memStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens[id]++
	body, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrArtifactNotFound, id)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (s *memStore) openCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[id]
}

type stubModel struct{ name string }

func (stubModel) Predict(_ context.Context, rows []features.Record) ([]int, error) {
	return make([]int, len(rows)), nil
}

// textCodec accepts any body except "corrupt" and counts decodes.
type textCodec struct {
	decodes atomic.Int64
	delay   time.Duration
}

func (c *textCodec) Decode(_ context.Context, id string, r io.Reader) (registry.Handle, error) {
	c.decodes.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	switch string(b) {
	case "corrupt":
		return nil, errors.New("unexpected end of artifact")
	case "panic":
		panic("bad artifact")
	}
	return &stubModel{name: id}, nil
}

var defaultAllowList = []registry.Entry{
	{Identifier: "logistic_no_cluster.pkl", Label: "Logistic Regression (No Cluster)"},
	{Identifier: "logistic_with_cluster.pkl", Label: "Logistic Regression (With Cluster)"},
}

func TestListAvailable(t *testing.T) {
	ctx := context.Background()

	Convey("Given storage with no artifacts", t, func() {
		reg := registry.New(newMemStore(map[string]string{}), &textCodec{})

		Convey("When listing", func() {
			ids, err := reg.ListAvailable(ctx)

			Convey("Then the result is empty and no error is raised", func() {
				So(err, ShouldBeNil)
				So(ids, ShouldBeEmpty)
			})
		})

		Convey("And Options reports an empty registry", func() {
			_, err := reg.Options(ctx)
			So(errors.Is(err, registry.ErrRegistryEmpty), ShouldBeTrue)
		})
	})

	Convey("Given storage holding a clustering artifact", t, func() {
		store := newMemStore(map[string]string{
			"logistic_no_cluster.pkl": "m",
			"kmeans_v1.pkl":           "m",
		})
		reg := registry.New(store, &textCodec{}, registry.WithAllowList(defaultAllowList))

		Convey("When listing", func() {
			ids, err := reg.ListAvailable(ctx)

			Convey("Then anything containing kmeans is dropped", func() {
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"logistic_no_cluster.pkl"})
			})
		})

		Convey("When curating", func() {
			ids, _ := reg.ListAvailable(ctx)
			labels := reg.CuratedLabels(ids)

			Convey("Then only the allow-listed, present model is exposed", func() {
				So(labels, ShouldResemble, map[string]string{
					"Logistic Regression (No Cluster)": "logistic_no_cluster.pkl",
				})
			})
		})
	})

	Convey("Given custom exclusion markers", t, func() {
		store := newMemStore(map[string]string{"a.pkl": "m", "dbscan_a.pkl": "m", "kmeans.pkl": "m"})
		reg := registry.New(store, &textCodec{}, registry.WithExcludeMarkers("dbscan", " "))

		Convey("Then only the configured markers are excluded", func() {
			ids, err := reg.ListAvailable(ctx)
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"a.pkl", "kmeans.pkl"})
		})
	})

	Convey("Given a store that cannot be listed", t, func() {
		store := newMemStore(nil)
		store.listErr = errors.New("permission denied")
		reg := registry.New(store, &textCodec{})

		Convey("Then the error is returned", func() {
			_, err := reg.ListAvailable(ctx)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "permission denied")
		})
	})
}

func TestCuratedLabels(t *testing.T) {
	Convey("Given an allow-list and a discovered set that only partly overlap", t, func() {
		reg := registry.New(newMemStore(nil), &textCodec{}, registry.WithAllowList(defaultAllowList))
		discovered := []string{"logistic_with_cluster.pkl", "random_forest_no_cluster.pkl"}

		Convey("When curating", func() {
			labels := reg.CuratedLabels(discovered)

			Convey("Then the exposed set is exactly the intersection", func() {
				So(labels, ShouldHaveLength, 1)
				So(labels["Logistic Regression (With Cluster)"], ShouldEqual, "logistic_with_cluster.pkl")
			})
		})
	})

	Convey("Given every allow-listed model on disk", t, func() {
		store := newMemStore(map[string]string{
			"logistic_with_cluster.pkl":    "m",
			"logistic_no_cluster.pkl":      "m",
			"random_forest_no_cluster.pkl": "m",
		})
		reg := registry.New(store, &textCodec{}, registry.WithAllowList(defaultAllowList))

		Convey("When listing options", func() {
			entries, err := reg.Options(context.Background())

			Convey("Then they follow allow-list order and skip unlisted files", func() {
				So(err, ShouldBeNil)
				So(entries, ShouldResemble, defaultAllowList)
			})
		})
	})

	Convey("Given an empty allow-list", t, func() {
		reg := registry.New(newMemStore(map[string]string{"logistic_no_cluster.pkl": "m"}), &textCodec{})

		Convey("Then nothing is exposed", func() {
			_, err := reg.Options(context.Background())
			So(errors.Is(err, registry.ErrRegistryEmpty), ShouldBeTrue)
		})
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	Convey("Given a registry over a counting store", t, func() {
		store := newMemStore(map[string]string{
			"logistic_no_cluster.pkl": "model",
			"broken.pkl":              "corrupt",
			"explodes.pkl":            "panic",
		})
		codec := &textCodec{}
		var hookCalls atomic.Int64
		reg := registry.New(store, codec, registry.WithLoadHook(func(string, time.Duration, error) {
			hookCalls.Add(1)
		}))

		Convey("When loading the same identifier twice", func() {
			first, err1 := reg.Load(ctx, "logistic_no_cluster.pkl")
			second, err2 := reg.Load(ctx, "logistic_no_cluster.pkl")

			Convey("Then the second call is served from cache", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(second, ShouldEqual, first)
				So(store.openCount("logistic_no_cluster.pkl"), ShouldEqual, 1)
				So(codec.decodes.Load(), ShouldEqual, 1)
				So(hookCalls.Load(), ShouldEqual, 1)
				So(reg.Cached(), ShouldEqual, 1)
			})
		})

		Convey("When the identifier has no file", func() {
			h, err := reg.Load(ctx, "missing.pkl")

			Convey("Then ErrArtifactNotFound is returned", func() {
				So(h, ShouldBeNil)
				So(errors.Is(err, registry.ErrArtifactNotFound), ShouldBeTrue)
				So(registry.IsCorrupt(err), ShouldBeFalse)
			})
		})

		Convey("When the file fails to decode", func() {
			h, err := reg.Load(ctx, "broken.pkl")

			Convey("Then ArtifactCorrupt carries the cause", func() {
				So(h, ShouldBeNil)
				var ce *registry.ArtifactCorruptError
				So(errors.As(err, &ce), ShouldBeTrue)
				So(ce.Identifier, ShouldEqual, "broken.pkl")
				So(ce.Cause.Error(), ShouldContainSubstring, "unexpected end")
			})

			Convey("And the failure is not cached", func() {
				_, _ = reg.Load(ctx, "broken.pkl")
				So(store.openCount("broken.pkl"), ShouldEqual, 2)
				So(reg.Cached(), ShouldEqual, 0)
			})
		})

		Convey("When the decoder panics", func() {
			var err error
			So(func() { _, err = reg.Load(ctx, "explodes.pkl") }, ShouldNotPanic)
			So(registry.IsCorrupt(err), ShouldBeTrue)
		})
	})

	Convey("Given many concurrent callers for one identifier", t, func() {
		store := newMemStore(map[string]string{"logistic_with_cluster.pkl": "model"})
		codec := &textCodec{delay: 20 * time.Millisecond}
		reg := registry.New(store, codec)

		Convey("When they load at once", func() {
			var wg sync.WaitGroup
			handles := make([]registry.Handle, 16)
			for i := range handles {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					handles[i], _ = reg.Load(ctx, "logistic_with_cluster.pkl")
				}(i)
			}
			wg.Wait()

			Convey("Then the artifact is decoded once and all share the handle", func() {
				So(codec.decodes.Load(), ShouldEqual, 1)
				for _, h := range handles {
					So(h, ShouldEqual, handles[0])
				}
			})
		})
	})

	Convey("Given a shared cache", t, func() {
		cache := registry.NewCache()
		store := newMemStore(map[string]string{"m.pkl": "model"})
		codec := &textCodec{}
		a := registry.New(store, codec, registry.WithCache(cache))
		b := registry.New(store, codec, registry.WithCache(cache))

		Convey("Then a handle loaded by one registry is reused by the other", func() {
			ha, _ := a.Load(ctx, "m.pkl")
			hb, _ := b.Load(ctx, "m.pkl")
			So(hb, ShouldEqual, ha)
			So(codec.decodes.Load(), ShouldEqual, 1)
			So(cache.Len(), ShouldEqual, 1)
		})
	})
}
