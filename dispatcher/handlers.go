package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/NOAA-OWP/DMOD-sub000/allocation"
	"github.com/NOAA-OWP/DMOD-sub000/catalog"
	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/hydrofabric"
	"github.com/NOAA-OWP/DMOD-sub000/jobs"
	"github.com/NOAA-OWP/DMOD-sub000/message"
	"github.com/NOAA-OWP/DMOD-sub000/resolver"
	"github.com/NOAA-OWP/DMOD-sub000/resources"
	"github.com/NOAA-OWP/DMOD-sub000/session"
)

// Success reasons
const (
	ReasonJobAccepted       = "Job Accepted"
	ReasonPartitioned       = "Partitioning Complete"
	ReasonAllocationPlanned = "Allocation Planned"
)

// Dependencies are the collaborators handlers read from. Handlers are only
// registered for the collaborators that are set.
type Dependencies struct {
	// Catalog is read by model exec and SEARCH; Datasets is used when nil.
	Catalog   catalog.Provider
	Datasets  catalog.Manager
	Resources resources.Provider
	Graphs    hydrofabric.Provider
	// Sessions defaults to accepting any non-empty secret.
	Sessions session.Validator
	Jobs     jobs.Sink

	StrictAmbiguity bool

	Now   func() time.Time
	NewID func() string
}

func (d *Dependencies) defaults() {
	if d.Catalog == nil && d.Datasets != nil {
		d.Catalog = d.Datasets
	}
	if d.Sessions == nil {
		d.Sessions = session.AllowAll{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
}

type handlers struct {
	deps    Dependencies
	logger  *slog.Logger
	metrics *Metrics
}

func registerHandlers(t *Table, deps Dependencies, logger *slog.Logger, metrics *Metrics) {
	deps.defaults()
	h := &handlers{deps: deps, logger: logger, metrics: metrics}

	if deps.Catalog != nil && deps.Resources != nil && deps.Jobs != nil {
		t.Register(Route{EventType: message.EventModelExecRequest}, h.modelExec)
	}
	if deps.Graphs != nil {
		t.Register(Route{EventType: message.EventPartitionRequest}, h.partition)
	}
	if deps.Resources != nil {
		t.Register(Route{EventType: message.EventSchedulerRequest}, h.scheduler)
	}
	if deps.Datasets != nil {
		h.registerDatasetHandlers(t)
	}
}

func (h *handlers) authorize(ctx context.Context, secret string) error {
	ok, err := h.deps.Sessions.Validate(ctx, secret)
	if err != nil {
		return errors.NewKind(errors.KindInternal, err, "validate session")
	}
	if !ok {
		return errors.Unauthorized()
	}
	return nil
}

// ModelExecResult is the data of an accepted model exec request.
type ModelExecResult struct {
	JobID      string              `json:"job_id"`
	Allocation *allocation.Plan    `json:"allocation"`
	Resolution *resolver.Result    `json:"resolution"`
	Scope      *hydrofabric.Subset `json:"scope,omitempty"`
}

func (h *handlers) modelExec(ctx context.Context, r *Request) (*message.Response, error) {
	req, err := message.Decode[message.ModelExecRequest](r.Raw)
	if err != nil {
		return nil, err
	}
	if err := h.authorize(ctx, req.SessionSecret); err != nil {
		return nil, err
	}

	var (
		reqs  []domain.DataRequirement
		scope *hydrofabric.Subset
		uid   string
	)
	switch req.JobType {
	case message.JobTypeNWM:
		reqs = req.NWM.Requirements()
	case message.JobTypeNGEN:
		uid = req.NGEN.HydrofabricUID
		scope, err = h.scope(req.NGEN)
		if err != nil {
			return nil, err
		}
		var catchments []string
		if scope != nil {
			catchments = scope.CatchmentIDs
		}
		reqs = req.NGEN.Requirements(catchments)
	}

	datasets, err := h.deps.Catalog.ListDatasets(ctx, "", "")
	if err != nil {
		return nil, errors.NewKind(errors.KindInternal, err, "list datasets")
	}
	result := resolver.Resolve(reqs, datasets, resolver.WithStrictAmbiguity(h.deps.StrictAmbiguity))
	h.observeResolution(result)
	if err := result.Err(); err != nil {
		resp := message.FromError(err)
		resp.Data = map[string]any{"resolution": result}
		return resp, nil
	}

	snapshot, err := h.deps.Resources.Snapshot(ctx)
	if err != nil {
		return nil, errors.NewKind(errors.KindInternal, err, "read resource snapshot")
	}
	plan, err := allocation.NewPlan(req.CPUCount, req.AllocationParadigm, snapshot)
	if err != nil {
		return nil, err
	}

	job := &jobs.Job{
		ID:             h.deps.NewID(),
		JobType:        string(req.JobType),
		CPUCount:       req.CPUCount,
		Allocation:     plan,
		Requirements:   result.Apply(reqs),
		Scope:          scope,
		HydrofabricUID: uid,
		SubmittedAt:    h.deps.Now().UTC(),
	}
	if err := h.deps.Jobs.Submit(ctx, job); err != nil {
		return nil, errors.NewKind(errors.KindInternal, err, "submit job %s", job.ID)
	}

	h.logger.Info("job accepted", "job_id", job.ID, "job_type", job.JobType,
		"cpu_count", job.CPUCount, "nodes", plan.Nodes())
	return message.Success(ReasonJobAccepted, &ModelExecResult{
		JobID:      job.ID,
		Allocation: plan,
		Resolution: result,
		Scope:      scope,
	}), nil
}

// scope computes the catchment subset of an ngen job. No catchments means
// the whole hydrofabric and yields a nil scope.
func (h *handlers) scope(body *message.NGENRequestBody) (*hydrofabric.Subset, error) {
	if len(body.Catchments) == 0 {
		return nil, nil
	}
	if h.deps.Graphs == nil {
		return nil, errors.Validation("catchment subsets are not available: no hydrofabric provider is configured")
	}
	g, err := h.deps.Graphs.LoadGraph(body.HydrofabricUID)
	if err != nil {
		return nil, err
	}
	if body.SubsetUpstream {
		return g.UpstreamSubset(body.Catchments)
	}
	return g.DirectSubset(body.Catchments)
}

func (h *handlers) observeResolution(result *resolver.Result) {
	h.metrics.recordResolution(result)
	for _, b := range result.Ambiguous() {
		h.logger.Info("ambiguous data requirement", "index", b.Index, "category", b.Category,
			"status", b.Status, "selected", b.DatasetID, "candidates", b.Candidates)
	}
}

// PartitionResult is the data of a partition response.
type PartitionResult struct {
	PartitionCount    int                     `json:"partition_count"`
	HydrofabricUID    string                  `json:"hydrofabric_uid"`
	HydrofabricDataID string                  `json:"hydrofabric_data_id,omitempty"`
	Assignments       map[string]int          `json:"assignments"`
	Partitions        []hydrofabric.Partition `json:"partitions"`
}

func (h *handlers) partition(_ context.Context, r *Request) (*message.Response, error) {
	req, err := message.Decode[message.PartitionRequest](r.Raw)
	if err != nil {
		return nil, err
	}

	g, err := h.deps.Graphs.LoadGraph(req.HydrofabricUID)
	if err != nil {
		return nil, err
	}
	pc, err := hydrofabric.PartitionGraph(g, req.PartitionCount)
	if err != nil {
		return nil, err
	}

	return message.Success(ReasonPartitioned, &PartitionResult{
		PartitionCount:    req.PartitionCount,
		HydrofabricUID:    req.HydrofabricUID,
		HydrofabricDataID: req.HydrofabricDataID,
		Assignments:       pc.Assignments(),
		Partitions:        pc.Partitions,
	}), nil
}

// SchedulerResult is the data of a scheduler response.
type SchedulerResult struct {
	UserID     string           `json:"user_id"`
	Allocation *allocation.Plan `json:"allocation"`
}

func (h *handlers) scheduler(ctx context.Context, r *Request) (*message.Response, error) {
	req, err := message.Decode[message.SchedulerRequest](r.Raw)
	if err != nil {
		return nil, err
	}

	snapshot, err := h.deps.Resources.Snapshot(ctx)
	if err != nil {
		return nil, errors.NewKind(errors.KindInternal, err, "read resource snapshot")
	}
	plan, err := allocation.NewPlan(req.CPUs, req.AllocationParadigm, snapshot)
	if err != nil {
		return nil, err
	}
	return message.Success(ReasonAllocationPlanned, &SchedulerResult{UserID: req.UserID, Allocation: plan}), nil
}
