// Package gateway holds the HTTP-facing services of DMOD. Each gateway can
// run its own listener or mount its routes on a shared mux.
package gateway

import (
	"net/http"

	"github.com/NOAA-OWP/DMOD-sub000/component"
)

// Gateway is a managed service that also exposes HTTP routes.
type Gateway interface {
	component.LifecycleComponent
	HTTPHandler
}

// HTTPHandler mounts routes under prefix. An empty prefix mounts at the root.
type HTTPHandler interface {
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}
