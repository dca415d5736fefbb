// Package domain holds the data model shared by the resolver, the dispatcher
// and the dataset catalog: formats, indices, restrictions, requirements and
// dataset descriptors.
package domain

import (
	"fmt"
	"strings"
)

// DataCategory is the broad purpose of a dataset or requirement.
type DataCategory string

// Supported data categories
const (
	CategoryConfig      DataCategory = "CONFIG"
	CategoryForcing     DataCategory = "FORCING"
	CategoryHydrofabric DataCategory = "HYDROFABRIC"
	CategoryObservation DataCategory = "OBSERVATION"
	CategoryOutput      DataCategory = "OUTPUT"
)

// Categories lists every valid category.
var Categories = []DataCategory{
	CategoryConfig, CategoryForcing, CategoryHydrofabric, CategoryObservation, CategoryOutput,
}

// Valid reports whether c is a known category.
func (c DataCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseDataCategory parses a category name, ignoring case.
func ParseDataCategory(s string) (DataCategory, error) {
	c := DataCategory(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown data category %q", s)
	}
	return c, nil
}

// ValueKind is the type of the values an index takes.
type ValueKind int

// Value kinds used to normalize discrete restriction values
const (
	KindString ValueKind = iota
	KindInteger
	KindTime
)

// StandardDatasetIndex names a variable a restriction can constrain.
type StandardDatasetIndex string

// Standard indices
const (
	IndexUnknown                 StandardDatasetIndex = "UNKNOWN"
	IndexTime                    StandardDatasetIndex = "TIME"
	IndexCatchmentID             StandardDatasetIndex = "CATCHMENT_ID"
	IndexDataID                  StandardDatasetIndex = "DATA_ID"
	IndexHydrofabricID           StandardDatasetIndex = "HYDROFABRIC_ID"
	IndexLength                  StandardDatasetIndex = "LENGTH"
	IndexGlobalChecksum          StandardDatasetIndex = "GLOBAL_CHECKSUM"
	IndexElementID               StandardDatasetIndex = "ELEMENT_ID"
	IndexRealizationConfigDataID StandardDatasetIndex = "REALIZATION_CONFIG_DATA_ID"
	IndexFileName                StandardDatasetIndex = "FILE_NAME"
	IndexHydrofabricVersion      StandardDatasetIndex = "HYDROFABRIC_VERSION"
	IndexHydrofabricRegion       StandardDatasetIndex = "HYDROFABRIC_REGION"
)

var indexKinds = map[StandardDatasetIndex]ValueKind{
	IndexUnknown:                 KindString,
	IndexTime:                    KindTime,
	IndexCatchmentID:             KindString,
	IndexDataID:                  KindString,
	IndexHydrofabricID:           KindString,
	IndexLength:                  KindInteger,
	IndexGlobalChecksum:          KindString,
	IndexElementID:               KindString,
	IndexRealizationConfigDataID: KindString,
	IndexFileName:                KindString,
	IndexHydrofabricVersion:      KindString,
	IndexHydrofabricRegion:       KindString,
}

// Valid reports whether i is a known index.
func (i StandardDatasetIndex) Valid() bool {
	_, ok := indexKinds[i]
	return ok
}

// Kind returns the value kind of the index; unknown indices are strings.
func (i StandardDatasetIndex) Kind() ValueKind {
	return indexKinds[i]
}

// DataFormat identifies the concrete layout of a dataset.
type DataFormat string

// Supported data formats
const (
	FormatAORCCSV                DataFormat = "AORC_CSV"
	FormatNetCDFForcingCanonical DataFormat = "NETCDF_FORCING_CANONICAL"
	FormatNetCDFAORCDefault      DataFormat = "NETCDF_AORC_DEFAULT"
	FormatNgenOutput             DataFormat = "NGEN_OUTPUT"
	FormatNgenRealizationConfig  DataFormat = "NGEN_REALIZATION_CONFIG"
	FormatNgenGeoJSONHydrofabric DataFormat = "NGEN_GEOJSON_HYDROFABRIC"
	FormatNgenPartitionConfig    DataFormat = "NGEN_PARTITION_CONFIG"
	FormatBMIConfig              DataFormat = "BMI_CONFIG"
	FormatNWMOutput              DataFormat = "NWM_OUTPUT"
	FormatNWMConfig              DataFormat = "NWM_CONFIG"
	FormatNgenCalConfig          DataFormat = "NGEN_CAL_CONFIG"
	FormatNgenCalOutput          DataFormat = "NGEN_CAL_OUTPUT"
	FormatGeneric                DataFormat = "GENERIC"
)

var formatIndices = map[DataFormat][]StandardDatasetIndex{
	FormatAORCCSV:                {IndexCatchmentID, IndexTime},
	FormatNetCDFForcingCanonical: {IndexCatchmentID, IndexTime},
	FormatNetCDFAORCDefault:      {IndexCatchmentID, IndexTime},
	FormatNgenOutput:             {IndexCatchmentID, IndexTime, IndexDataID},
	FormatNgenRealizationConfig:  {IndexCatchmentID, IndexTime, IndexDataID},
	FormatNgenGeoJSONHydrofabric: {IndexCatchmentID, IndexHydrofabricID, IndexDataID},
	FormatNgenPartitionConfig:    {IndexDataID, IndexHydrofabricID, IndexLength},
	FormatBMIConfig:              {IndexGlobalChecksum, IndexDataID},
	FormatNWMOutput:              {IndexCatchmentID, IndexTime, IndexDataID},
	FormatNWMConfig:              {IndexElementID, IndexTime, IndexDataID},
	FormatNgenCalConfig:          {IndexDataID, IndexRealizationConfigDataID},
	FormatNgenCalOutput:          {IndexDataID},
	FormatGeneric:                {},
}

// Valid reports whether f is a known format.
func (f DataFormat) Valid() bool {
	_, ok := formatIndices[f]
	return ok
}

// Indices returns the indices datasets of this format are described by.
func (f DataFormat) Indices() []StandardDatasetIndex {
	return append([]StandardDatasetIndex(nil), formatIndices[f]...)
}

// DatasetType is the kind of backing store a dataset lives in.
type DatasetType string

// Dataset storage types
const (
	DatasetTypeObjectStore DatasetType = "OBJECT_STORE"
	DatasetTypeFilesystem  DatasetType = "FILESYSTEM"
	DatasetTypeUnknown     DatasetType = "UNKNOWN"
)
