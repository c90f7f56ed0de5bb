package knowledge

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddx-reasoning-core/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestLoadFile(t *testing.T) {
	snap, err := LoadFile(filepath.Join("testdata", "chest_pain.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "2026.09-chest", snap.Version())

	set, err := snap.Lookup("chest_pain")
	require.NoError(t, err)
	require.Len(t, set.Associations, 4)
	// associations are indexed by disease id
	assert.Equal(t, "ACS", set.Associations[0].DiseaseID)
	assert.Equal(t, domain.OnsetEarly, set.Associations[0].Onset)

	p, err := snap.Prevalence("PE")
	require.NoError(t, err)
	assert.InDelta(t, 0.0006, p, 1e-12)

	d, ok := snap.Disease("PE")
	require.True(t, ok)
	assert.Equal(t, domain.UrgencyCritical, d.Urgency)

	_, err = snap.Prevalence("UNKNOWN")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	empty, err := snap.Lookup("no_such_code")
	require.NoError(t, err)
	assert.Empty(t, empty.Associations)
}

func TestLoadFileInvalid(t *testing.T) {
	_, err := LoadFile(filepath.Join("testdata", "invalid.json"))
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
	assert.Equal(t, "diseases[0].prevalence", ve.Field)

	_, err = LoadFile(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Document {
		return &Document{
			Version:  "v1",
			Diseases: []domain.DiseaseProfile{{ID: "A", Prevalence: 0.1, Urgency: domain.UrgencyLow}},
			Associations: []FindingAssociations{{
				FindingCode: "f1",
				Diseases:    []domain.Association{{DiseaseID: "A", Frequency: 0.5, Specificity: 0.5}},
			}},
		}
	}

	tests := []struct {
		name   string
		mutate func(d *Document)
		field  string
	}{
		{"missing version", func(d *Document) { d.Version = "" }, "version"},
		{"no diseases", func(d *Document) { d.Diseases = nil }, "diseases"},
		{"zero prevalence", func(d *Document) { d.Diseases[0].Prevalence = 0 }, "diseases[0].prevalence"},
		{"bad urgency", func(d *Document) { d.Diseases[0].Urgency = "urgent" }, "diseases[0].urgency"},
		{"unknown disease", func(d *Document) { d.Associations[0].Diseases[0].DiseaseID = "B" }, "associations[0].diseases[0].disease_id"},
		{"frequency out of range", func(d *Document) { d.Associations[0].Diseases[0].Frequency = 1.5 }, "associations[0].diseases[0].frequency"},
		{"bad onset", func(d *Document) { d.Associations[0].Diseases[0].Onset = "sudden" }, "associations[0].diseases[0].onset"},
	}

	require.NoError(t, Validate(base()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := base()
			tt.mutate(doc)
			err := Validate(doc)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestParseFormats(t *testing.T) {
	doc, err := Parse([]byte(`{"version":"j1","diseases":[{"id":"A","name":"A","prevalence":0.5,"urgency":"high"}]}`), "json")
	require.NoError(t, err)
	assert.Equal(t, "j1", doc.Version)

	_, err = Parse([]byte("version: x"), "toml")
	assert.Error(t, err)
}

func TestCachedSnapshot(t *testing.T) {
	snap, err := LoadFile(filepath.Join("testdata", "chest_pain.yaml"))
	require.NoError(t, err)

	cached, err := NewCachedSnapshot(snap, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		set, err := cached.Lookup("dyspnea")
		require.NoError(t, err)
		assert.Len(t, set.Associations, 2)
	}
	stats := cached.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, "2026.09-chest", cached.Version())

	d, ok := cached.Disease("COSTO")
	require.True(t, ok)
	assert.Equal(t, "Costochondritis", d.Name)
}

func TestCachedSnapshotReturnsCopies(t *testing.T) {
	snap, err := LoadFile(filepath.Join("testdata", "chest_pain.yaml"))
	require.NoError(t, err)
	cached, err := NewCachedSnapshot(snap, 8)
	require.NoError(t, err)

	first, err := cached.Lookup("dyspnea")
	require.NoError(t, err)
	want := first.Associations[0].Frequency
	first.Associations[0].Frequency = 0

	second, err := cached.Lookup("dyspnea")
	require.NoError(t, err)
	assert.Equal(t, want, second.Associations[0].Frequency)
	second.Associations[0].Frequency = 0

	third, err := cached.Lookup("dyspnea")
	require.NoError(t, err)
	assert.Equal(t, want, third.Associations[0].Frequency)
}

func TestStoreCurrentBeforePublish(t *testing.T) {
	store := NewStore(0, quietLogger())
	_, err := store.Current()
	assert.True(t, domain.IsCode(err, domain.ErrKnowledgeUnavailable))
	assert.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestStoreReloadKeepsPreviousOnFailure(t *testing.T) {
	store := NewStore(16, quietLogger())
	require.NoError(t, store.Reload(filepath.Join("testdata", "chest_pain.yaml")))

	pinned, err := store.Current()
	require.NoError(t, err)
	_, isCached := pinned.(*CachedSnapshot)
	assert.True(t, isCached)

	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("version: [unterminated"), 0o600))
	assert.Error(t, store.Reload(broken))

	current, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, "2026.09-chest", current.Version())
}

func TestStorePublishIsAtomicForPinnedReaders(t *testing.T) {
	store := NewStore(0, quietLogger())
	first, err := NewMemorySnapshot(&Document{
		Version:  "v1",
		Diseases: []domain.DiseaseProfile{{ID: "A", Prevalence: 0.1, Urgency: domain.UrgencyLow}},
	})
	require.NoError(t, err)
	second, err := NewMemorySnapshot(&Document{
		Version:  "v2",
		Diseases: []domain.DiseaseProfile{{ID: "A", Prevalence: 0.1, Urgency: domain.UrgencyLow}},
	})
	require.NoError(t, err)

	store.Publish(first)
	pinned, err := store.Current()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				store.Publish(second)
				return
			}
			snap, err := store.Current()
			assert.NoError(t, err)
			assert.Contains(t, []string{"v1", "v2"}, snap.Version())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, "v1", pinned.Version())
	_, ok := store.PublishedAt()
	assert.True(t, ok)
}

func TestSnapshotStats(t *testing.T) {
	snap, err := LoadFile(filepath.Join("testdata", "chest_pain.yaml"))
	require.NoError(t, err)

	st := snap.Stats(1e-3)
	assert.Equal(t, 4, st.Diseases)
	assert.Equal(t, 3, st.FindingCodes)
	assert.Equal(t, 8, st.Associations)
	assert.Equal(t, 1, st.RareDiseases)
}

func TestStoreDescribe(t *testing.T) {
	store := NewStore(16, quietLogger())
	_, err := store.Describe(1e-3)
	assert.True(t, domain.IsCode(err, domain.ErrKnowledgeUnavailable))

	require.NoError(t, store.Reload(filepath.Join("testdata", "chest_pain.yaml")))
	summary, err := store.Describe(1e-3)
	require.NoError(t, err)
	assert.Equal(t, "2026.09-chest", summary.Version)
	assert.Equal(t, 4, summary.Diseases)
	assert.Equal(t, 1, summary.RareDiseases)
	require.NotNil(t, summary.LookupCache)
	assert.False(t, summary.PublishedAt.IsZero())
}
