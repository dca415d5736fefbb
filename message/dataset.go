package message

import (
	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// DatasetAction selects the dataset management operation.
type DatasetAction string

// Dataset management actions
const (
	ActionCreate        DatasetAction = "CREATE"
	ActionAddData       DatasetAction = "ADD_DATA"
	ActionRemoveData    DatasetAction = "REMOVE_DATA"
	ActionDelete        DatasetAction = "DELETE"
	ActionSearch        DatasetAction = "SEARCH"
	ActionQuery         DatasetAction = "QUERY"
	ActionCloseAwaiting DatasetAction = "CLOSE_AWAITING"
	ActionListAll       DatasetAction = "LIST_ALL"
	ActionRequestData   DatasetAction = "REQUEST_DATA"
	ActionUnknown       DatasetAction = "UNKNOWN"
)

// DatasetActions lists every action, UNKNOWN last.
var DatasetActions = []DatasetAction{
	ActionCreate, ActionAddData, ActionRemoveData, ActionDelete, ActionSearch,
	ActionQuery, ActionCloseAwaiting, ActionListAll, ActionRequestData, ActionUnknown,
}

// ParseDatasetAction maps an action name to its action; anything
// unrecognized is UNKNOWN.
func ParseDatasetAction(s string) DatasetAction {
	a := DatasetAction(s)
	for _, known := range DatasetActions {
		if a == known {
			return a
		}
	}
	return ActionUnknown
}

// QueryType selects what a QUERY action reports about a dataset.
type QueryType string

// Query types
const (
	QueryListFiles     QueryType = "LIST_FILES"
	QueryGetCategory   QueryType = "GET_CATEGORY"
	QueryGetDataFormat QueryType = "GET_DATA_FORMAT"
	QueryGetDataDomain QueryType = "GET_DATA_DOMAIN"
	QueryGetIndices    QueryType = "GET_INDICES"
	QueryGetDescriptor QueryType = "GET_SERIALIZED_FORM"
)

func (q QueryType) valid() bool {
	switch q {
	case QueryListFiles, QueryGetCategory, QueryGetDataFormat, QueryGetDataDomain, QueryGetIndices, QueryGetDescriptor:
		return true
	}
	return false
}

// DatasetManagementRequest carries one dataset management action. Which
// fields are required depends on Action.
type DatasetManagementRequest struct {
	Action          DatasetAction           `json:"action"`
	SessionSecret   string                  `json:"session_secret,omitempty"`
	DatasetName     string                  `json:"dataset_name,omitempty"`
	Category        domain.DataCategory     `json:"category,omitempty"`
	Domain          *domain.DataDomain      `json:"data_domain,omitempty"`
	DataRequirement *domain.DataRequirement `json:"data_requirement,omitempty"`
	ItemName        string                  `json:"item_name,omitempty"`
	Data            []byte                  `json:"data,omitempty"`
	IsReadOnly      bool                    `json:"read_only,omitempty"`
	QueryType       QueryType               `json:"query_type,omitempty"`
}

// Validate checks the fields the action needs.
func (r *DatasetManagementRequest) Validate() error {
	r.Action = ParseDatasetAction(string(r.Action))

	needName := func() error {
		if r.DatasetName == "" {
			return errors.Validation("%s requires dataset_name", r.Action)
		}
		return nil
	}
	needItem := func() error {
		if err := needName(); err != nil {
			return err
		}
		if r.ItemName == "" {
			return errors.Validation("%s requires item_name", r.Action)
		}
		return nil
	}

	switch r.Action {
	case ActionCreate:
		if err := needName(); err != nil {
			return err
		}
		if !r.Category.Valid() {
			return errors.Validation("CREATE requires a valid category, got %q", r.Category)
		}
		if r.Domain == nil {
			return errors.Validation("CREATE requires data_domain")
		}
		if err := r.Domain.Validate(); err != nil {
			return errors.Validation("data_domain: %v", err)
		}
	case ActionAddData:
		if err := needItem(); err != nil {
			return err
		}
		if r.Data == nil {
			return errors.Validation("ADD_DATA requires data")
		}
	case ActionRemoveData, ActionRequestData:
		return needItem()
	case ActionDelete:
		return needName()
	case ActionSearch:
		if r.DataRequirement == nil {
			return errors.Validation("SEARCH requires data_requirement")
		}
		if err := r.DataRequirement.Validate(); err != nil {
			return errors.Validation("data_requirement: %v", err)
		}
	case ActionQuery:
		if err := needName(); err != nil {
			return err
		}
		if !r.QueryType.valid() {
			return errors.Validation("QUERY requires a valid query_type, got %q", r.QueryType)
		}
	case ActionListAll:
		if r.Category != "" && !r.Category.Valid() {
			return errors.Validation("invalid category %q", r.Category)
		}
	}
	return nil
}
