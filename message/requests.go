package message

import (
	"encoding/json"
	"strings"

	"github.com/NOAA-OWP/DMOD-sub000/allocation"
	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// Validator is implemented by requests that check their own fields.
type Validator interface {
	Validate() error
}

// Decode unmarshals raw into a T and validates it when T is a Validator.
func Decode[T any](raw []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		var de *errors.DMODError
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, errors.Validation("malformed request: %v", err)
	}
	if val, ok := any(&v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return nil, err
		}
	}
	return &v, nil
}

// JobType selects the model a ModelExecRequest runs.
type JobType string

// Job types
const (
	JobTypeNWM  JobType = "nwm"
	JobTypeNGEN JobType = "ngen"
)

// DefaultCPUCount is used when a request omits cpu_count.
const DefaultCPUCount = 1

// ModelExecRequest asks for a model job to be scheduled. Exactly one of
// NWM and NGEN is set, matching JobType.
type ModelExecRequest struct {
	JobType            JobType
	CPUCount           int
	AllocationParadigm allocation.Paradigm
	SessionSecret      string
	NWM                *NWMRequestBody
	NGEN               *NGENRequestBody
}

type wireModelExec struct {
	MessageEventType   EventType            `json:"message_event_type"`
	JobType            JobType              `json:"job_type"`
	CPUCount           *int                 `json:"cpu_count,omitempty"`
	AllocationParadigm *allocation.Paradigm `json:"allocation_paradigm,omitempty"`
	SessionSecret      string               `json:"session_secret"`
	RequestBody        json.RawMessage      `json:"request_body"`
}

// UnmarshalJSON decodes the request body by job type and applies defaults.
func (r *ModelExecRequest) UnmarshalJSON(data []byte) error {
	var w wireModelExec
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*r = ModelExecRequest{
		JobType:            w.JobType,
		CPUCount:           DefaultCPUCount,
		AllocationParadigm: allocation.DefaultParadigm,
		SessionSecret:      w.SessionSecret,
	}
	if w.CPUCount != nil {
		r.CPUCount = *w.CPUCount
	}
	if w.AllocationParadigm != nil {
		r.AllocationParadigm = *w.AllocationParadigm
	}

	if len(w.RequestBody) == 0 {
		return nil
	}
	switch w.JobType {
	case JobTypeNWM:
		r.NWM = &NWMRequestBody{}
		return json.Unmarshal(w.RequestBody, r.NWM)
	case JobTypeNGEN:
		r.NGEN = &NGENRequestBody{}
		return json.Unmarshal(w.RequestBody, r.NGEN)
	}
	return nil
}

// MarshalJSON emits the wire form with the body nested under request_body.
func (r ModelExecRequest) MarshalJSON() ([]byte, error) {
	w := wireModelExec{
		MessageEventType:   EventModelExecRequest,
		JobType:            r.JobType,
		CPUCount:           &r.CPUCount,
		AllocationParadigm: &r.AllocationParadigm,
		SessionSecret:      r.SessionSecret,
	}
	var body any
	switch {
	case r.NWM != nil:
		body = r.NWM
	case r.NGEN != nil:
		body = r.NGEN
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		w.RequestBody = raw
	}
	return json.Marshal(w)
}

// Validate checks the fields common to every job type and the body.
func (r *ModelExecRequest) Validate() error {
	if r.SessionSecret == "" {
		return errors.Validation("session_secret is required")
	}
	if r.CPUCount <= 0 {
		return errors.Validation("cpu_count must be greater than 0, got %d", r.CPUCount)
	}
	if !r.AllocationParadigm.Valid() {
		return errors.Validation("invalid allocation_paradigm %q", r.AllocationParadigm)
	}

	switch r.JobType {
	case JobTypeNWM:
		if r.NWM == nil {
			return errors.Validation("nwm request has no request_body")
		}
		return r.NWM.Validate()
	case JobTypeNGEN:
		if r.NGEN == nil {
			return errors.Validation("ngen request has no request_body")
		}
		return r.NGEN.Validate()
	}
	return errors.Validation("invalid job_type %q, expected nwm or ngen", r.JobType)
}

// NWMRequestBody configures an NWM job.
type NWMRequestBody struct {
	ConfigDataID     string                   `json:"config_data_id"`
	DataRequirements []domain.DataRequirement `json:"data_requirements,omitempty"`
}

// Validate checks the config id and each declared requirement.
func (b *NWMRequestBody) Validate() error {
	if b.ConfigDataID == "" {
		return errors.Validation("config_data_id is required")
	}
	return validateRequirements(b.DataRequirements)
}

// Requirements returns the declared requirements plus the NWM config.
func (b *NWMRequestBody) Requirements() []domain.DataRequirement {
	cfg := domain.DataRequirement{
		Category: domain.CategoryConfig,
		IsInput:  true,
		Domain:   domain.NewDataDomain(domain.FormatNWMConfig).WithStrings(domain.IndexDataID, b.ConfigDataID),
	}
	return append([]domain.DataRequirement{cfg}, b.DataRequirements...)
}

// PartitionRequest asks for an ngen partition config of a hydrofabric.
type PartitionRequest struct {
	PartitionCount    int    `json:"partition_count"`
	HydrofabricUID    string `json:"hydrofabric_uid"`
	HydrofabricDataID string `json:"hydrofabric_data_id,omitempty"`
}

// Validate checks the count and hydrofabric.
func (r *PartitionRequest) Validate() error {
	if r.PartitionCount < 1 {
		return errors.Validation("partition_count must be at least 1, got %d", r.PartitionCount)
	}
	if r.HydrofabricUID == "" {
		return errors.Validation("hydrofabric_uid is required")
	}
	return nil
}

// SchedulerRequest asks for an allocation plan on behalf of a user.
type SchedulerRequest struct {
	UserID             string              `json:"user_id"`
	CPUs               int                 `json:"cpus"`
	AllocationParadigm allocation.Paradigm `json:"allocation_paradigm"`
	Memory             int64               `json:"memory,omitempty"`
}

// Validate checks the user and cpu count.
func (r *SchedulerRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.Validation("user_id is required")
	}
	if r.CPUs <= 0 {
		return errors.Validation("cpus must be greater than 0, got %d", r.CPUs)
	}
	if r.AllocationParadigm == "" {
		r.AllocationParadigm = allocation.DefaultParadigm
	}
	return nil
}

// SessionInitRequest opens an authenticated session.
type SessionInitRequest struct {
	Username   string `json:"username"`
	UserSecret string `json:"user_secret"`
}

func validateRequirements(reqs []domain.DataRequirement) error {
	for i, r := range reqs {
		if err := r.Validate(); err != nil {
			return errors.Validation("data_requirements[%d]: %v", i, err)
		}
	}
	return nil
}
