package catalog

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

type snapshot struct {
	datasets map[string]domain.DatasetDescriptor
	items    map[string]map[string][]byte
}

func (s *snapshot) clone() *snapshot {
	out := &snapshot{
		datasets: make(map[string]domain.DatasetDescriptor, len(s.datasets)),
		items:    make(map[string]map[string][]byte, len(s.items)),
	}
	for k, v := range s.datasets {
		out.datasets[k] = v
	}
	for k, v := range s.items {
		inner := make(map[string][]byte, len(v))
		for name, data := range v {
			inner[name] = data
		}
		out.items[k] = inner
	}
	return out
}

// Memory is an in-process catalog and dataset manager.
type Memory struct {
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
	now     func() time.Time
}

// NewMemory creates a catalog holding the given datasets.
func NewMemory(datasets ...domain.DatasetDescriptor) *Memory {
	m := &Memory{now: time.Now}
	s := &snapshot{
		datasets: make(map[string]domain.DatasetDescriptor, len(datasets)),
		items:    make(map[string]map[string][]byte, len(datasets)),
	}
	for _, d := range datasets {
		s.datasets[d.Name] = d
		s.items[d.Name] = make(map[string][]byte)
	}
	m.current.Store(s)
	return m
}

// Replace swaps in a new set of datasets, dropping all stored items.
func (m *Memory) Replace(datasets []domain.DatasetDescriptor) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	prev := m.current.Load()
	s := &snapshot{
		datasets: make(map[string]domain.DatasetDescriptor, len(datasets)),
		items:    make(map[string]map[string][]byte, len(datasets)),
	}
	for _, d := range datasets {
		s.datasets[d.Name] = d
		if items, ok := prev.items[d.Name]; ok {
			s.items[d.Name] = items
		} else {
			s.items[d.Name] = make(map[string][]byte)
		}
	}
	m.current.Store(s)
}

// ListDatasets implements Provider.
func (m *Memory) ListDatasets(_ context.Context, category domain.DataCategory, format domain.DataFormat) ([]domain.DatasetDescriptor, error) {
	s := m.current.Load()
	all := make([]domain.DatasetDescriptor, 0, len(s.datasets))
	for _, d := range s.datasets {
		all = append(all, d)
	}
	return Filter(all, category, format), nil
}

// GetDataset returns the named dataset.
func (m *Memory) GetDataset(_ context.Context, name string) (*domain.DatasetDescriptor, error) {
	d, ok := m.current.Load().datasets[name]
	if !ok {
		return nil, notFound(name)
	}
	return &d, nil
}

// CreateDataset adds a new, empty dataset. A missing UUID, creation time or
// access location is filled in.
func (m *Memory) CreateDataset(_ context.Context, d domain.DatasetDescriptor) (*domain.DatasetDescriptor, error) {
	if err := d.Validate(); err != nil {
		return nil, errors.Validation("%v", err)
	}

	return m.update(func(s *snapshot) (*domain.DatasetDescriptor, error) {
		if _, exists := s.datasets[d.Name]; exists {
			return nil, alreadyExists(d.Name)
		}
		if d.UUID == "" {
			d.UUID = uuid.NewString()
		}
		if d.Created.IsZero() {
			d.Created = m.now().UTC()
		}
		if d.AccessLocation == "" {
			d.AccessLocation = "memory://" + d.Name
		}
		s.datasets[d.Name] = d
		s.items[d.Name] = make(map[string][]byte)
		return &d, nil
	})
}

// DeleteDataset removes a dataset and its items.
func (m *Memory) DeleteDataset(_ context.Context, name string) error {
	_, err := m.update(func(s *snapshot) (*domain.DatasetDescriptor, error) {
		if _, ok := s.datasets[name]; !ok {
			return nil, notFound(name)
		}
		delete(s.datasets, name)
		delete(s.items, name)
		return nil, nil
	})
	return err
}

// AddItem stores data under item, replacing any previous content.
func (m *Memory) AddItem(_ context.Context, dataset, item string, data []byte) error {
	_, err := m.update(func(s *snapshot) (*domain.DatasetDescriptor, error) {
		d, ok := s.datasets[dataset]
		if !ok {
			return nil, notFound(dataset)
		}
		if d.IsReadOnly {
			return nil, readOnly(dataset)
		}
		s.items[dataset][item] = append([]byte(nil), data...)
		touch(&d, m.now())
		s.datasets[dataset] = d
		return nil, nil
	})
	return err
}

// RemoveItem deletes one item.
func (m *Memory) RemoveItem(_ context.Context, dataset, item string) error {
	_, err := m.update(func(s *snapshot) (*domain.DatasetDescriptor, error) {
		d, ok := s.datasets[dataset]
		if !ok {
			return nil, notFound(dataset)
		}
		if d.IsReadOnly {
			return nil, readOnly(dataset)
		}
		if _, ok := s.items[dataset][item]; !ok {
			return nil, itemNotFound(dataset, item)
		}
		delete(s.items[dataset], item)
		touch(&d, m.now())
		s.datasets[dataset] = d
		return nil, nil
	})
	return err
}

// GetItem returns a copy of one item's content.
func (m *Memory) GetItem(_ context.Context, dataset, item string) ([]byte, error) {
	s := m.current.Load()
	if _, ok := s.datasets[dataset]; !ok {
		return nil, notFound(dataset)
	}
	data, ok := s.items[dataset][item]
	if !ok {
		return nil, itemNotFound(dataset, item)
	}
	return append([]byte(nil), data...), nil
}

// ListItems returns a dataset's item names, sorted.
func (m *Memory) ListItems(_ context.Context, dataset string) ([]string, error) {
	s := m.current.Load()
	if _, ok := s.datasets[dataset]; !ok {
		return nil, notFound(dataset)
	}
	names := make([]string, 0, len(s.items[dataset]))
	for name := range s.items[dataset] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) update(fn func(*snapshot) (*domain.DatasetDescriptor, error)) (*domain.DatasetDescriptor, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := m.current.Load().clone()
	d, err := fn(next)
	if err != nil {
		return nil, err
	}
	m.current.Store(next)
	return d, nil
}

func touch(d *domain.DatasetDescriptor, now time.Time) {
	t := now.UTC()
	d.LastUpdated = &t
}

var _ Manager = (*Memory)(nil)
