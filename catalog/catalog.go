// Package catalog provides the dataset catalog the resolver matches
// requirements against, and the dataset manager behind DATASET_MANAGEMENT
// requests.
//
// Readers always see a complete, immutable snapshot of the catalog.
// Writers build a new snapshot and swap it in atomically, so a request that
// is resolving against the catalog never observes a partial update.
package catalog

import (
	"context"
	"sort"

	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// Provider lists datasets. Empty filters match everything.
type Provider interface {
	ListDatasets(ctx context.Context, category domain.DataCategory, format domain.DataFormat) ([]domain.DatasetDescriptor, error)
}

// Manager creates, fills and removes datasets.
type Manager interface {
	Provider
	GetDataset(ctx context.Context, name string) (*domain.DatasetDescriptor, error)
	CreateDataset(ctx context.Context, d domain.DatasetDescriptor) (*domain.DatasetDescriptor, error)
	DeleteDataset(ctx context.Context, name string) error
	AddItem(ctx context.Context, dataset, item string, data []byte) error
	RemoveItem(ctx context.Context, dataset, item string) error
	GetItem(ctx context.Context, dataset, item string) ([]byte, error)
	ListItems(ctx context.Context, dataset string) ([]string, error)
}

// Response reasons for dataset manager failures.
const (
	ReasonDatasetNotFound = "Dataset Not Found"
	ReasonDatasetExists   = "Dataset Exists"
	ReasonItemNotFound    = "Item Not Found"
	ReasonReadOnly        = "Dataset Read Only"
)

func notFound(name string) error {
	return errors.NewKind(errors.KindValidation, errors.ErrDatasetNotFound, "dataset %q does not exist", name).
		WithReason(ReasonDatasetNotFound)
}

func alreadyExists(name string) error {
	return errors.NewKind(errors.KindValidation, errors.ErrDatasetExists, "dataset %q already exists", name).
		WithReason(ReasonDatasetExists)
}

func itemNotFound(dataset, item string) error {
	return errors.NewKind(errors.KindValidation, errors.ErrItemNotFound, "dataset %q has no item %q", dataset, item).
		WithReason(ReasonItemNotFound)
}

func readOnly(name string) error {
	return errors.NewKind(errors.KindValidation, errors.ErrDatasetReadOnly, "dataset %q is read only", name).
		WithReason(ReasonReadOnly)
}

// Filter returns the datasets matching category and format, sorted by name.
func Filter(all []domain.DatasetDescriptor, category domain.DataCategory, format domain.DataFormat) []domain.DatasetDescriptor {
	out := make([]domain.DatasetDescriptor, 0, len(all))
	for _, d := range all {
		if category != "" && d.Category != category {
			continue
		}
		if format != "" && (d.Domain == nil || d.Domain.DataFormat != format) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
