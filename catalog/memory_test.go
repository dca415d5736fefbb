package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

func forcing(name string) domain.DatasetDescriptor {
	return domain.DatasetDescriptor{
		Name:     name,
		Category: domain.CategoryForcing,
		Domain: domain.NewDataDomain(domain.FormatAORCCSV).
			WithRange(domain.IndexTime,
				time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func realization(name string) domain.DatasetDescriptor {
	return domain.DatasetDescriptor{
		Name:     name,
		Category: domain.CategoryConfig,
		Domain:   domain.NewDataDomain(domain.FormatNgenRealizationConfig).WithStrings(domain.IndexDataID, name),
	}
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func TestFilter(t *testing.T) {
	all := []domain.DatasetDescriptor{forcing("b-forcing"), realization("real"), forcing("a-forcing"), {Name: "no-domain", Category: domain.CategoryForcing}}

	got := Filter(all, domain.CategoryForcing, "")
	require.Len(t, got, 3)
	assert.Equal(t, "a-forcing", got[0].Name)
	assert.Equal(t, "b-forcing", got[1].Name)

	got = Filter(all, "", domain.FormatAORCCSV)
	assert.Len(t, got, 2)

	got = Filter(all, domain.CategoryConfig, domain.FormatAORCCSV)
	assert.Empty(t, got)

	assert.Len(t, Filter(all, "", ""), 4)
}

func TestMemory_ListDatasets(t *testing.T) {
	m := NewMemory(forcing("aorc"), realization("real"))

	all, err := m.ListDatasets(context.Background(), "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	cfgs, err := m.ListDatasets(context.Background(), domain.CategoryConfig, "")
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, "real", cfgs[0].Name)
}

func TestMemory_CreateDataset(t *testing.T) {
	m := NewMemory()
	m.now = fixedClock
	ctx := context.Background()

	d, err := m.CreateDataset(ctx, forcing("aorc"))
	require.NoError(t, err)
	assert.NotEmpty(t, d.UUID)
	assert.Equal(t, fixedClock(), d.Created)
	assert.Equal(t, "memory://aorc", d.AccessLocation)

	_, err = m.CreateDataset(ctx, forcing("aorc"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDatasetExists))
	de, ok := errors.AsDMOD(err)
	require.True(t, ok)
	assert.Equal(t, ReasonDatasetExists, de.Reason)

	_, err = m.CreateDataset(ctx, domain.DatasetDescriptor{Name: "bad", Category: domain.CategoryForcing})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestMemory_Items(t *testing.T) {
	m := NewMemory(forcing("aorc"))
	m.now = fixedClock
	ctx := context.Background()

	require.NoError(t, m.AddItem(ctx, "aorc", "cat-2.csv", []byte("b")))
	require.NoError(t, m.AddItem(ctx, "aorc", "cat-1.csv", []byte("a")))

	names, err := m.ListItems(ctx, "aorc")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat-1.csv", "cat-2.csv"}, names)

	data, err := m.GetItem(ctx, "aorc", "cat-1.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)

	// The returned slice is a copy.
	data[0] = 'z'
	again, _ := m.GetItem(ctx, "aorc", "cat-1.csv")
	assert.Equal(t, []byte("a"), again)

	d, err := m.GetDataset(ctx, "aorc")
	require.NoError(t, err)
	require.NotNil(t, d.LastUpdated)
	assert.Equal(t, fixedClock(), *d.LastUpdated)

	require.NoError(t, m.RemoveItem(ctx, "aorc", "cat-1.csv"))
	err = m.RemoveItem(ctx, "aorc", "cat-1.csv")
	assert.True(t, errors.Is(err, errors.ErrItemNotFound))

	_, err = m.GetItem(ctx, "aorc", "cat-1.csv")
	assert.True(t, errors.Is(err, errors.ErrItemNotFound))
}

func TestMemory_ReadOnly(t *testing.T) {
	d := forcing("frozen")
	d.IsReadOnly = true
	m := NewMemory(d)

	err := m.AddItem(context.Background(), "frozen", "x", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDatasetReadOnly))
	de, _ := errors.AsDMOD(err)
	assert.Equal(t, ReasonReadOnly, de.Reason)
}

func TestMemory_NotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetDataset(ctx, "nope")
	assert.True(t, errors.Is(err, errors.ErrDatasetNotFound))
	assert.True(t, errors.Is(m.DeleteDataset(ctx, "nope"), errors.ErrDatasetNotFound))
	assert.True(t, errors.Is(m.AddItem(ctx, "nope", "x", nil), errors.ErrDatasetNotFound))
	_, err = m.ListItems(ctx, "nope")
	assert.True(t, errors.Is(err, errors.ErrDatasetNotFound))
}

func TestMemory_DeleteDataset(t *testing.T) {
	m := NewMemory(forcing("aorc"))
	ctx := context.Background()
	require.NoError(t, m.AddItem(ctx, "aorc", "x", []byte("1")))

	require.NoError(t, m.DeleteDataset(ctx, "aorc"))
	_, err := m.GetDataset(ctx, "aorc")
	assert.Error(t, err)

	// Recreating starts with no items.
	_, err = m.CreateDataset(ctx, forcing("aorc"))
	require.NoError(t, err)
	names, err := m.ListItems(ctx, "aorc")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemory_ReplaceKeepsItems(t *testing.T) {
	m := NewMemory(forcing("aorc"), forcing("old"))
	ctx := context.Background()
	require.NoError(t, m.AddItem(ctx, "aorc", "x", []byte("1")))

	m.Replace([]domain.DatasetDescriptor{forcing("aorc"), realization("real")})

	names, err := m.ListItems(ctx, "aorc")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, names)
	_, err = m.GetDataset(ctx, "old")
	assert.Error(t, err)
}

func TestMemory_ReadersSeeWholeSnapshots(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				m.Replace([]domain.DatasetDescriptor{forcing("a"), forcing("b")})
			} else {
				m.Replace(nil)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			all, err := m.ListDatasets(ctx, "", "")
			assert.NoError(t, err)
			assert.Contains(t, []int{0, 2}, len(all))
		}
	}()
	wg.Wait()
}
