package message

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOAA-OWP/DMOD-sub000/allocation"
	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

const ngenRequest = `{
	"message_event_type": "MODEL_EXEC_REQUEST",
	"job_type": "ngen",
	"cpu_count": 4,
	"allocation_paradigm": "FILL_NODES",
	"session_secret": "s3cret",
	"request_body": {
		"time_range": {"begin": "2020-01-01T00:00:00Z", "end": "2020-01-02T00:00:00Z"},
		"hydrofabric_uid": "hf-1",
		"hydrofabric_data_id": "hf-data",
		"realization_config_data_id": "real-1",
		"bmi_config_data_id": "bmi-1",
		"catchments": ["cat-10"],
		"subset_upstream": true
	}
}`

func TestParseEventType(t *testing.T) {
	for _, e := range EventTypes {
		assert.Equal(t, e, ParseEventType(string(e)))
	}
	assert.Equal(t, EventInvalid, ParseEventType(""))
	assert.Equal(t, EventInvalid, ParseEventType("FOO"))
	assert.Equal(t, EventInvalid, ParseEventType("model_exec_request"))

	assert.True(t, EventPartitionRequest.Known())
	assert.False(t, EventInvalid.Known())
	assert.False(t, EventType("FOO").Known())
}

func TestReadHeader(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		eventType EventType
		rawType   string
		action    DatasetAction
	}{
		{"known", `{"message_event_type":"PARTITION_REQUEST"}`, EventPartitionRequest, "PARTITION_REQUEST", ""},
		{"unknown", `{"message_event_type":"FOO"}`, EventInvalid, "FOO", ""},
		{"missing", `{"cpu_count":1}`, EventInvalid, "", ""},
		{"null", `{"message_event_type":null}`, EventInvalid, "", ""},
		{"number", `{"message_event_type":42}`, EventInvalid, "42", ""},
		{"dataset action", `{"message_event_type":"DATASET_MANAGEMENT","action":"LIST_ALL"}`, EventDatasetManagement, "DATASET_MANAGEMENT", ActionListAll},
		{"dataset bad action", `{"message_event_type":"DATASET_MANAGEMENT","action":"EXPLODE"}`, EventDatasetManagement, "DATASET_MANAGEMENT", ActionUnknown},
		{"dataset no action", `{"message_event_type":"DATASET_MANAGEMENT"}`, EventDatasetManagement, "DATASET_MANAGEMENT", ActionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ReadHeader([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.eventType, h.EventType)
			assert.Equal(t, tt.rawType, h.RawEventType)
			assert.Equal(t, tt.action, h.Action)
		})
	}
}

func TestReadHeader_NotAnObject(t *testing.T) {
	for _, raw := range []string{``, `not json`, `[1,2]`, `"MODEL_EXEC_REQUEST"`, `null`} {
		h, err := ReadHeader([]byte(raw))
		require.Error(t, err, raw)
		assert.Equal(t, errors.KindProtocol, errors.KindOf(err))
		assert.Equal(t, EventInvalid, h.EventType)
	}
}

func TestDecode_NGENModelExec(t *testing.T) {
	req, err := Decode[ModelExecRequest]([]byte(ngenRequest))
	require.NoError(t, err)

	assert.Equal(t, JobTypeNGEN, req.JobType)
	assert.Equal(t, 4, req.CPUCount)
	assert.Equal(t, allocation.FillNodes, req.AllocationParadigm)
	assert.Nil(t, req.NWM)
	require.NotNil(t, req.NGEN)
	assert.Equal(t, domain.IndexTime, req.NGEN.TimeRange.Variable, "variable defaults to TIME")
	assert.True(t, req.NGEN.SubsetUpstream)
	assert.Equal(t, []string{"cat-10"}, req.NGEN.Catchments)
}

func TestDecode_ModelExecDefaults(t *testing.T) {
	raw := `{"message_event_type":"MODEL_EXEC_REQUEST","job_type":"nwm","session_secret":"s",
		"request_body":{"config_data_id":"nwm-cfg"}}`

	req, err := Decode[ModelExecRequest]([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, DefaultCPUCount, req.CPUCount)
	assert.Equal(t, allocation.DefaultParadigm, req.AllocationParadigm)
	require.NotNil(t, req.NWM)

	reqs := req.NWM.Requirements()
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.CategoryConfig, reqs[0].Category)
	assert.Equal(t, domain.FormatNWMConfig, reqs[0].Domain.DataFormat)
}

func TestDecode_ModelExecValidation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		message string
	}{
		{"zero cpus", `{"job_type":"nwm","cpu_count":0,"session_secret":"s","request_body":{"config_data_id":"c"}}`, "cpu_count must be greater than 0"},
		{"negative cpus", `{"job_type":"nwm","cpu_count":-2,"session_secret":"s","request_body":{"config_data_id":"c"}}`, "cpu_count must be greater than 0"},
		{"bad paradigm", `{"job_type":"nwm","allocation_paradigm":"SPREAD","session_secret":"s","request_body":{"config_data_id":"c"}}`, "allocation_paradigm"},
		{"no secret", `{"job_type":"nwm","request_body":{"config_data_id":"c"}}`, "session_secret is required"},
		{"bad job type", `{"job_type":"wrf","session_secret":"s","request_body":{}}`, "invalid job_type"},
		{"missing body", `{"job_type":"ngen","session_secret":"s"}`, "no request_body"},
		{"nwm missing config", `{"job_type":"nwm","session_secret":"s","request_body":{}}`, "config_data_id is required"},
		{"ngen missing hydrofabric", `{"job_type":"ngen","session_secret":"s","request_body":{"time_range":{"begin":"2020-01-01T00:00:00Z","end":"2020-01-02T00:00:00Z"}}}`, "hydrofabric_uid is required"},
		{"ngen reversed range", `{"job_type":"ngen","session_secret":"s","request_body":{"hydrofabric_uid":"h","hydrofabric_data_id":"d","realization_config_data_id":"r","bmi_config_data_id":"b","time_range":{"begin":"2020-01-02T00:00:00Z","end":"2020-01-01T00:00:00Z"}}}`, "before it begins"},
		{"wrong type", `{"job_type":"nwm","cpu_count":"four","session_secret":"s","request_body":{}}`, "malformed request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Decode[ModelExecRequest]([]byte(tt.raw))
			assert.Nil(t, req)
			require.Error(t, err)
			assert.Equal(t, errors.KindValidation, errors.KindOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestModelExecRequest_RoundTrip(t *testing.T) {
	req, err := Decode[ModelExecRequest]([]byte(ngenRequest))
	require.NoError(t, err)

	out, err := json.Marshal(req)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(out, &wire))
	assert.Equal(t, "MODEL_EXEC_REQUEST", wire["message_event_type"])
	assert.Equal(t, "ngen", wire["job_type"])
	assert.Contains(t, wire["request_body"], "hydrofabric_uid")

	again, err := Decode[ModelExecRequest](out)
	require.NoError(t, err)
	assert.Equal(t, req, again)
}

func TestNGENRequestBody_Requirements(t *testing.T) {
	req, err := Decode[ModelExecRequest]([]byte(ngenRequest))
	require.NoError(t, err)

	reqs := req.NGEN.Requirements([]string{"cat-10", "cat-3"})
	require.Len(t, reqs, 5)

	var categories []domain.DataCategory
	for _, r := range reqs {
		require.NoError(t, r.Validate())
		categories = append(categories, r.Category)
	}
	assert.Equal(t, []domain.DataCategory{
		domain.CategoryHydrofabric, domain.CategoryConfig, domain.CategoryConfig,
		domain.CategoryForcing, domain.CategoryOutput,
	}, categories)

	forcing := reqs[3]
	assert.True(t, forcing.IsInput)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), forcing.Domain.Continuous[domain.IndexTime].Begin)
	assert.Equal(t, []string{"cat-10", "cat-3"}, forcing.Domain.Discrete[domain.IndexCatchmentID].Strings())
	assert.False(t, reqs[4].IsInput)

	req.NGEN.PartitionConfigDataID = "part-1"
	assert.Len(t, req.NGEN.Requirements(nil), 6)
	assert.True(t, req.NGEN.Requirements(nil)[3].Domain.Discrete[domain.IndexCatchmentID].IsAll())
}

func TestDecode_PartitionAndScheduler(t *testing.T) {
	p, err := Decode[PartitionRequest]([]byte(`{"partition_count":3,"hydrofabric_uid":"hf-1"}`))
	require.NoError(t, err)
	assert.Equal(t, 3, p.PartitionCount)

	_, err = Decode[PartitionRequest]([]byte(`{"partition_count":0,"hydrofabric_uid":"hf-1"}`))
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))

	s, err := Decode[SchedulerRequest]([]byte(`{"user_id":"u1","cpus":2}`))
	require.NoError(t, err)
	assert.Equal(t, allocation.DefaultParadigm, s.AllocationParadigm)

	_, err = Decode[SchedulerRequest]([]byte(`{"user_id":"u1","cpus":0}`))
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestDatasetManagementRequest_Validate(t *testing.T) {
	domainJSON := `{"data_format":"AORC_CSV","continuous":[{"variable":"TIME","begin":"2020-01-01T00:00:00Z","end":"2020-02-01T00:00:00Z"}]}`
	requirement := fmt.Sprintf(`{"category":"FORCING","is_input":true,"domain":%s}`, domainJSON)

	tests := []struct {
		raw   string
		valid bool
	}{
		{fmt.Sprintf(`{"action":"CREATE","dataset_name":"d","category":"FORCING","data_domain":%s}`, domainJSON), true},
		{`{"action":"CREATE","dataset_name":"d","category":"FORCING"}`, false},
		{fmt.Sprintf(`{"action":"CREATE","dataset_name":"d","category":"SNOW","data_domain":%s}`, domainJSON), false},
		{`{"action":"ADD_DATA","dataset_name":"d","item_name":"a.csv","data":"aGVsbG8="}`, true},
		{`{"action":"ADD_DATA","dataset_name":"d","item_name":"a.csv"}`, false},
		{`{"action":"REMOVE_DATA","dataset_name":"d"}`, false},
		{`{"action":"REQUEST_DATA","dataset_name":"d","item_name":"a.csv"}`, true},
		{`{"action":"DELETE"}`, false},
		{fmt.Sprintf(`{"action":"SEARCH","data_requirement":%s}`, requirement), true},
		{`{"action":"SEARCH"}`, false},
		{`{"action":"QUERY","dataset_name":"d","query_type":"LIST_FILES"}`, true},
		{`{"action":"QUERY","dataset_name":"d","query_type":"EVERYTHING"}`, false},
		{`{"action":"LIST_ALL"}`, true},
		{`{"action":"LIST_ALL","category":"SNOW"}`, false},
		{`{"action":"CLOSE_AWAITING"}`, true},
		{`{"action":"EXPLODE"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			req, err := Decode[DatasetManagementRequest]([]byte(tt.raw))
			if tt.valid {
				require.NoError(t, err)
				return
			}
			assert.Nil(t, req)
			assert.Equal(t, errors.KindValidation, errors.KindOf(err))
		})
	}

	req, err := Decode[DatasetManagementRequest]([]byte(`{"action":"EXPLODE"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionUnknown, req.Action)

	add, err := Decode[DatasetManagementRequest]([]byte(`{"action":"ADD_DATA","dataset_name":"d","item_name":"a","data":"aGVsbG8="}`))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), add.Data)
}

func TestValidate_Schema(t *testing.T) {
	assert.NoError(t, Validate(EventModelExecRequest, []byte(ngenRequest)))
	assert.NoError(t, Validate(EventMetadata, []byte(`{"anything":true}`)), "no schema registered")
	assert.True(t, HasSchema(EventPartitionRequest))
	assert.False(t, HasSchema(EventMetadata))

	err := Validate(EventPartitionRequest, []byte(`{"message_event_type":"PARTITION_REQUEST","partition_count":"two"}`))
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	assert.Contains(t, err.Error(), "hydrofabric_uid")
	assert.Contains(t, err.Error(), "partition_count")

	err = Validate(EventModelExecRequest, []byte(`{"message_event_type":"MODEL_EXEC_REQUEST","job_type":"wrf","session_secret":"s","request_body":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job_type")

	err = Validate(EventSchedulerRequest, []byte(`{not json`))
	assert.Equal(t, errors.KindProtocol, errors.KindOf(err))
}

func TestResponseBuilders(t *testing.T) {
	ok := Success("Job Accepted", map[string]string{"job_id": "j1"})
	assert.True(t, ok.Success)
	assert.Equal(t, "", ok.Message)

	out, err := json.Marshal(Failure("Invalid Request", "cpu_count must be greater than 0"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"reason":"Invalid Request","message":"cpu_count must be greater than 0","data":null}`, string(out))

	unsupported := UnsupportedMessageType("FOO", "DMOD")
	assert.False(t, unsupported.Success)
	assert.Equal(t, ReasonUnsupported, unsupported.Reason)
	assert.Equal(t, map[string]string{"actual_event_type": "FOO", "listener_type": "DMOD"}, unsupported.Data)
	assert.Contains(t, UnsupportedMessageType("", "DMOD").Message, "(missing)")
}

func TestFromError(t *testing.T) {
	r := FromError(errors.Resolution("no dataset fulfills FORCING requirement").WithReason("no dataset fulfills FORCING requirement"))
	assert.False(t, r.Success)
	assert.Equal(t, "no dataset fulfills FORCING requirement", r.Reason)

	r = FromError(errors.Validation("cpu_count must be greater than 0, got 0"))
	assert.Equal(t, "Invalid Request", r.Reason)
	assert.Equal(t, "cpu_count must be greater than 0, got 0", r.Message)

	r = FromError(fmt.Errorf("dial tcp 10.0.0.3:4222: connection refused"))
	assert.Equal(t, ReasonInternal, r.Reason)
	assert.NotContains(t, r.Message, "10.0.0.3")
}
