package message

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

var schemaFileNames = map[EventType]string{
	EventModelExecRequest:  "schemas/model_exec_request.json",
	EventPartitionRequest:  "schemas/partition_request.json",
	EventSchedulerRequest:  "schemas/scheduler_request.json",
	EventDatasetManagement: "schemas/dataset_management.json",
	EventSessionInit:       "schemas/session_init.json",
}

var (
	schemasOnce sync.Once
	schemas     map[EventType]*gojsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[EventType]*gojsonschema.Schema, error) {
	schemasOnce.Do(func() {
		schemas = make(map[EventType]*gojsonschema.Schema, len(schemaFileNames))
		for eventType, name := range schemaFileNames {
			data, err := schemaFiles.ReadFile(name)
			if err != nil {
				schemasErr = errors.WrapFatal(err, "message", "loadSchemas", "read "+name)
				return
			}
			s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
			if err != nil {
				schemasErr = errors.WrapFatal(err, "message", "loadSchemas", "compile "+name)
				return
			}
			schemas[eventType] = s
		}
	})
	return schemas, schemasErr
}

// HasSchema reports whether messages of eventType are schema checked.
func HasSchema(eventType EventType) bool {
	_, ok := schemaFileNames[eventType]
	return ok
}

// Validate checks raw against the JSON schema for eventType. Event types
// without a schema always pass. Violations are reported as one validation
// error listing each failing field.
func Validate(eventType EventType, raw []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	schema, ok := all[eventType]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.Protocol("malformed %s message: %v", eventType, err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	sort.Strings(problems)
	return errors.Validation("invalid %s message: %s", eventType, strings.Join(problems, "; "))
}
