// Package natsclient wraps a NATS connection for the DMOD services.
//
// A Client tracks its connection state and counts failed operations. After
// a threshold of consecutive failures the circuit opens and every call fails
// fast with ErrCircuitOpen until the backoff elapses; the backoff doubles each
// time the circuit reopens, up to a maximum. Any success resets it.
//
// Besides core publish, subscribe and request/reply, the client opens
// JetStream streams, key-value buckets and object stores, creating them on
// first use:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("dmod-dispatcher"),
//	    natsclient.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	bucket, err := client.KeyValue(ctx, jetstream.KeyValueConfig{Bucket: "dmod_sessions"})
//	store := client.NewKVStore(bucket)
//
// KVStore adds timeouts, typed not-found and conflict errors, JSON helpers
// and compare-and-swap updates retried with backoff.
//
// TestClient starts a NATS server in a container for integration tests.
package natsclient
