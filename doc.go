// Package dmod is the request side of the Distributed Model on Demand job
// orchestration engine. It accepts model execution and data management
// requests from clients, resolves their data requirements against the
// dataset catalog, proposes CPU placements over the cluster, and hands
// accepted jobs to the execution layer. It also serves hydrofabric subsets
// and partitions.
//
// # Request flow
//
// Clients hold a persistent websocket session (or send NATS request/reply
// messages). Every inbound text message is one JSON request:
//
//	client --ws/NATS--> message.ReadHeader --> dispatcher --> handler
//	                                               |
//	        +--------------------------------------+-------------------------+
//	        v                                      v                         v
//	resolver.Resolve                     allocation.NewPlan        Graph.UpstreamSubset
//	(catalog snapshot)                   (resource snapshot)       hydrofabric.PartitionGraph
//	        |                                      |
//	        +------------------> jobs.Sink <-------+
//
// The dispatcher is stateless between requests. Each request sees one
// immutable snapshot of the catalog and one snapshot of cluster resources,
// and a failure in one request never affects another on the same channel.
// Every request gets exactly one response with success, reason and message.
//
// # Packages
//
// Core model and algorithms:
//   - domain: formats, indices, restrictions, data domains, requirements
//   - resolver: restriction matching and requirement resolution
//   - allocation: single-node and round-robin CPU placement plans
//   - hydrofabric: catchment/nexus graph, subsetting, partitioning, GeoJSON loading
//
// Protocol and services:
//   - message: event types, request and response envelopes, schema checks
//   - dispatcher: routes decoded requests to handlers
//   - input/websocket, input/natsrpc: request transports
//   - gateway/http: subset service endpoints
//
// Providers, backed by memory or by NATS JetStream:
//   - catalog: dataset descriptors and items
//   - resources: per-node CPU availability
//   - session: session secret validation
//   - jobs: accepted job submission
//
// Infrastructure:
//   - component, health: service lifecycle and status tree
//   - config, errors, metric, observability, natsclient
//   - pkg/cache, pkg/retry, pkg/worker, pkg/tlsutil
//
// # Running
//
//	dmod --config dmod.yaml
//	dmod --config dmod.yaml --validate
//
// Without NATS the service runs on an in-memory catalog and the static node
// list from the configuration. Accepted jobs are then only recorded in
// memory.
//
// # Error model
//
// Errors carry a class (transient, invalid, fatal) used for retries and
// lifecycle decisions, and a DMOD kind (protocol, validation, resolution,
// allocation, graph, internal) that becomes the response reason. Internal
// failures and recovered panics are reported to the client as
// "Internal Error" without detail.
package dmod
