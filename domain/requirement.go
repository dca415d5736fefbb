package domain

import (
	"fmt"
	"time"
)

// DataRequirement declares data a job reads or writes.
type DataRequirement struct {
	Category          DataCategory `json:"category"`
	IsInput           bool         `json:"is_input"`
	Domain            *DataDomain  `json:"domain"`
	Size              *int64       `json:"size,omitempty"`
	FulfilledBy       string       `json:"fulfilled_by,omitempty"`
	FulfilledAccessAt string       `json:"fulfilled_access_at,omitempty"`
}

// Validate checks the category and domain.
func (r DataRequirement) Validate() error {
	if !r.Category.Valid() {
		return fmt.Errorf("unknown data category %q", r.Category)
	}
	if r.Domain == nil {
		return fmt.Errorf("%s requirement has no domain", r.Category)
	}
	if err := r.Domain.Validate(); err != nil {
		return fmt.Errorf("%s requirement: %w", r.Category, err)
	}
	if r.Size != nil && *r.Size < 0 {
		return fmt.Errorf("%s requirement has negative size", r.Category)
	}
	return nil
}

// IsFulfilled reports whether the requirement has been bound to a dataset.
func (r DataRequirement) IsFulfilled() bool {
	return r.FulfilledBy != ""
}

// DatasetDescriptor is the catalog's view of an existing dataset.
type DatasetDescriptor struct {
	Name           string       `json:"name"`
	UUID           string       `json:"uuid,omitempty"`
	Category       DataCategory `json:"data_category"`
	Domain         *DataDomain  `json:"data_domain"`
	AccessLocation string       `json:"access_location"`
	Created        time.Time    `json:"created_on"`
	LastUpdated    *time.Time   `json:"last_updated,omitempty"`
	IsReadOnly     bool         `json:"is_read_only"`
	Type           DatasetType  `json:"type,omitempty"`
}

// Validate checks the descriptor is complete enough to be cataloged.
func (d DatasetDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("dataset name is required")
	}
	if !d.Category.Valid() {
		return fmt.Errorf("dataset %s has unknown category %q", d.Name, d.Category)
	}
	if d.Domain == nil {
		return fmt.Errorf("dataset %s has no domain", d.Name)
	}
	return d.Domain.Validate()
}
