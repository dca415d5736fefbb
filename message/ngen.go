package message

import (
	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// NGENRequestBody configures a NextGen job.
type NGENRequestBody struct {
	TimeRange               domain.ContinuousRestriction `json:"time_range"`
	HydrofabricUID          string                       `json:"hydrofabric_uid"`
	HydrofabricDataID       string                       `json:"hydrofabric_data_id"`
	RealizationConfigDataID string                       `json:"realization_config_data_id"`
	BMIConfigDataID         string                       `json:"bmi_config_data_id"`
	PartitionConfigDataID   string                       `json:"partition_config_data_id,omitempty"`
	ForcingsDataID          string                       `json:"forcings_data_id,omitempty"`
	// Catchments limits the job to these catchments; empty means the whole hydrofabric.
	Catchments []string `json:"catchments,omitempty"`
	// SubsetUpstream widens Catchments to everything upstream of them.
	SubsetUpstream   bool                     `json:"subset_upstream,omitempty"`
	DataRequirements []domain.DataRequirement `json:"data_requirements,omitempty"`
}

// Validate checks the identifiers and time range.
func (b *NGENRequestBody) Validate() error {
	switch {
	case b.HydrofabricUID == "":
		return errors.Validation("hydrofabric_uid is required")
	case b.HydrofabricDataID == "":
		return errors.Validation("hydrofabric_data_id is required")
	case b.RealizationConfigDataID == "":
		return errors.Validation("realization_config_data_id is required")
	case b.BMIConfigDataID == "":
		return errors.Validation("bmi_config_data_id is required")
	case b.TimeRange.Begin.IsZero() || b.TimeRange.End.IsZero():
		return errors.Validation("time_range requires begin and end")
	}
	if b.TimeRange.Variable == "" {
		b.TimeRange.Variable = domain.IndexTime
	}
	if b.TimeRange.Variable != domain.IndexTime {
		return errors.Validation("time_range must restrict TIME, got %s", b.TimeRange.Variable)
	}
	if err := b.TimeRange.Validate(); err != nil {
		return errors.Validation("%v", err)
	}
	return validateRequirements(b.DataRequirements)
}

// Requirements returns the data the job needs and produces over scope,
// followed by any explicitly declared requirements. An empty scope means
// every catchment of the hydrofabric.
func (b *NGENRequestBody) Requirements(scope []string) []domain.DataRequirement {
	input := func(category domain.DataCategory, d *domain.DataDomain) domain.DataRequirement {
		return domain.DataRequirement{Category: category, IsInput: true, Domain: d}
	}
	tr := b.TimeRange
	tr.Variable = domain.IndexTime

	hydrofabric := domain.NewDataDomain(domain.FormatNgenGeoJSONHydrofabric).
		WithStrings(domain.IndexHydrofabricID, b.HydrofabricUID).
		WithStrings(domain.IndexDataID, b.HydrofabricDataID)

	realization := domain.NewDataDomain(domain.FormatNgenRealizationConfig).
		WithStrings(domain.IndexDataID, b.RealizationConfigDataID)

	bmi := domain.NewDataDomain(domain.FormatBMIConfig).
		WithStrings(domain.IndexDataID, b.BMIConfigDataID)

	forcing := domain.NewDataDomain(domain.FormatAORCCSV).
		WithRange(domain.IndexTime, tr.Begin, tr.End).
		WithStrings(domain.IndexCatchmentID, scope...)
	if b.ForcingsDataID != "" {
		forcing.WithStrings(domain.IndexDataID, b.ForcingsDataID)
	}

	output := domain.NewDataDomain(domain.FormatNgenOutput).
		WithRange(domain.IndexTime, tr.Begin, tr.End).
		WithStrings(domain.IndexCatchmentID, scope...)

	reqs := []domain.DataRequirement{
		input(domain.CategoryHydrofabric, hydrofabric),
		input(domain.CategoryConfig, realization),
		input(domain.CategoryConfig, bmi),
		input(domain.CategoryForcing, forcing),
	}
	if b.PartitionConfigDataID != "" {
		partition := domain.NewDataDomain(domain.FormatNgenPartitionConfig).
			WithStrings(domain.IndexDataID, b.PartitionConfigDataID).
			WithStrings(domain.IndexHydrofabricID, b.HydrofabricUID)
		reqs = append(reqs, input(domain.CategoryConfig, partition))
	}
	reqs = append(reqs, domain.DataRequirement{Category: domain.CategoryOutput, Domain: output})
	return append(reqs, b.DataRequirements...)
}
