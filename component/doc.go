// Package component defines the lifecycle contract shared by DMOD's
// long-running services and a Manager that runs a set of them.
//
// Every service follows the same three-step pattern:
//
//	Initialize() error                 // allocate, validate; no goroutines
//	Start(ctx context.Context) error   // begin serving; ctx bounds the run
//	Stop(timeout time.Duration) error  // drain and release
//
// The Manager starts services in the order they were added, each with its
// own child context, and stops them in reverse. If a Start fails, the
// services already started are stopped before the error is returned.
//
//	mgr := component.NewManager(logger)
//	mgr.Add(wsServer)
//	mgr.Add(subsetGateway)
//	if err := mgr.Start(ctx); err != nil { ... }
//	defer mgr.Stop(10 * time.Second)
package component
