package dispatcher

import (
	"context"
	"fmt"

	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/message"
	"github.com/NOAA-OWP/DMOD-sub000/resolver"
)

// Dataset management success reasons
const (
	ReasonDatasetCreated = "Dataset Created"
	ReasonDataAdded      = "Data Added"
	ReasonDataRemoved    = "Data Removed"
	ReasonDatasetDeleted = "Dataset Deleted"
	ReasonSearchComplete = "Search Complete"
	ReasonQueryComplete  = "Query Complete"
	ReasonExchangeClosed = "Exchange Closed"
	ReasonDatasetsListed = "Datasets Listed"
	ReasonDataRetrieved  = "Data Retrieved"
)

type datasetHandler func(ctx context.Context, req *message.DatasetManagementRequest) (*message.Response, error)

func (h *handlers) registerDatasetHandlers(t *Table) {
	actions := map[message.DatasetAction]datasetHandler{
		message.ActionCreate:        h.authorized(h.createDataset),
		message.ActionAddData:       h.authorized(h.addData),
		message.ActionRemoveData:    h.authorized(h.removeData),
		message.ActionDelete:        h.authorized(h.deleteDataset),
		message.ActionSearch:        h.searchDatasets,
		message.ActionQuery:         h.queryDataset,
		message.ActionCloseAwaiting: h.closeAwaiting,
		message.ActionListAll:       h.listDatasets,
		message.ActionRequestData:   h.requestData,
	}
	for action, fn := range actions {
		t.Register(Route{EventType: message.EventDatasetManagement, Action: action}, decodeDataset(fn))
	}
	t.Register(Route{EventType: message.EventDatasetManagement, Action: message.ActionUnknown}, unsupportedAction)
}

func decodeDataset(fn datasetHandler) Handler {
	return func(ctx context.Context, r *Request) (*message.Response, error) {
		req, err := message.Decode[message.DatasetManagementRequest](r.Raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, req)
	}
}

// authorized requires a valid session for actions that change datasets.
func (h *handlers) authorized(fn datasetHandler) datasetHandler {
	return func(ctx context.Context, req *message.DatasetManagementRequest) (*message.Response, error) {
		if err := h.authorize(ctx, req.SessionSecret); err != nil {
			return nil, err
		}
		return fn(ctx, req)
	}
}

func unsupportedAction(_ context.Context, r *Request) (*message.Response, error) {
	action := r.Header.RawAction
	if action == "" {
		action = "(missing)"
	}
	return message.Failure(message.ReasonUnsupportedAction,
		fmt.Sprintf("dataset action %s is not supported", action)), nil
}

func (h *handlers) createDataset(ctx context.Context, req *message.DatasetManagementRequest) (*message.Response, error) {
	d, err := h.deps.Datasets.CreateDataset(ctx, domain.DatasetDescriptor{
		Name:       req.DatasetName,
		Category:   req.Category,
		Domain:     req.Domain,
		IsReadOnly: req.IsReadOnly,
	})
	if err != nil {
		return nil, err
	}
	h.logger.Info("dataset created", "dataset", d.Name, "category", d.Category, "uuid", d.UUID)
	return message.Success(ReasonDatasetCreated, map[string]any{"dataset": d}), nil
}

func (h *handlers) addData(ctx context.Context, req *message.DatasetManagementRequest) (*message.Response, error) {
	if err := h.deps.Datasets.AddItem(ctx, req.DatasetName, req.ItemName, req.Data); err != nil {
		return nil, err
	}
	return message.Success(ReasonDataAdded, map[string]any{
		"dataset_name": req.DatasetName,
		"item_name":    req.ItemName,
		"size":         len(req.Data),
	}), nil
}

func (h *handlers) removeData(ctx context.Context, req *message.DatasetManagementRequest) (*message.Response, error) {
	if err := h.deps.Datasets.RemoveItem(ctx, req.DatasetName, req.ItemName); err != nil {
		return nil, err
	}
	return message.Success(ReasonDataRemoved, map[string]any{
		"dataset_name": req.DatasetName,
		"item_name":    req.ItemName,
	}), nil
}

func (h *handlers) deleteDataset(ctx context.Context, req *message.DatasetManagementRequest) (*message.Response, error) {
	if err := h.deps.Datasets.DeleteDataset(ctx, req.DatasetName); err != nil {
		return nil, err
	}
	h.logger.Info("dataset deleted", "dataset", req.DatasetName)
	return message.Success(ReasonDatasetDeleted, map[string]any{"dataset_name": req.DatasetName}), nil
}

// SearchResult is the data of a successful SEARCH.
type SearchResult struct {
	DatasetName    string   `json:"dataset_name"`
	AccessLocation string   `json:"access_location,omitempty"`
	Ambiguous      bool     `json:"ambiguous,omitempty"`
	Candidates     []string `json:"candidates,omitempty"`
}

func (h *handlers) searchDatasets(ctx context.Context, req *message.DatasetManagementRequest) (*message.Response, error) {
	requirement := *req.DataRequirement
	requirement.IsInput = true

	datasets, err := h.deps.Catalog.ListDatasets(ctx, requirement.Category, "")
	if err != nil {
		return nil, errors.NewKind(errors.KindInternal, err, "list datasets")
	}
	result := resolver.Resolve([]domain.DataRequirement{requirement}, datasets,
		resolver.WithStrictAmbiguity(h.deps.StrictAmbiguity))
	h.observeResolution(result)
	if err := result.Err(); err != nil {
		return nil, err
	}

	b := result.Bindings[0]
	return message.Success(ReasonSearchComplete, &SearchResult{
		DatasetName:    b.DatasetID,
		AccessLocation: b.AccessLocation,
		Ambiguous:      b.Ambiguous,
		Candidates:     b.Candidates,
	}), nil
}

func (h *handlers) queryDataset(ctx context.Context, req *message.DatasetManagementRequest) (*message.Response, error) {
	d, err := h.deps.Datasets.GetDataset(ctx, req.DatasetName)
	if err != nil {
		return nil, err
	}

	format := domain.DataFormat("")
	if d.Domain != nil {
		format = d.Domain.DataFormat
	}

	var result any
	switch req.QueryType {
	case message.QueryListFiles:
		result, err = h.deps.Datasets.ListItems(ctx, req.DatasetName)
		if err != nil {
			return nil, err
		}
	case message.QueryGetCategory:
		result = d.Category
	case message.QueryGetDataFormat:
		result = format
	case message.QueryGetDataDomain:
		result = d.Domain
	case message.QueryGetIndices:
		result = format.Indices()
	case message.QueryGetDescriptor:
		result = d
	}

	return message.Success(ReasonQueryComplete, map[string]any{
		"dataset_name": req.DatasetName,
		"query_type":   req.QueryType,
		"result":       result,
	}), nil
}

func (h *handlers) closeAwaiting(context.Context, *message.DatasetManagementRequest) (*message.Response, error) {
	return message.Success(ReasonExchangeClosed, nil), nil
}

func (h *handlers) listDatasets(ctx context.Context, req *message.DatasetManagementRequest) (*message.Response, error) {
	datasets, err := h.deps.Datasets.ListDatasets(ctx, req.Category, "")
	if err != nil {
		return nil, errors.NewKind(errors.KindInternal, err, "list datasets")
	}
	names := make([]string, 0, len(datasets))
	for _, d := range datasets {
		names = append(names, d.Name)
	}
	return message.Success(ReasonDatasetsListed, map[string]any{"datasets": names}), nil
}

func (h *handlers) requestData(ctx context.Context, req *message.DatasetManagementRequest) (*message.Response, error) {
	data, err := h.deps.Datasets.GetItem(ctx, req.DatasetName, req.ItemName)
	if err != nil {
		return nil, err
	}
	return message.Success(ReasonDataRetrieved, map[string]any{
		"dataset_name": req.DatasetName,
		"item_name":    req.ItemName,
		"data":         data,
	}), nil
}
