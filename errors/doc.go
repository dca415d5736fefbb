// Package errors carries two complementary views of a failure.
//
// Classification (ErrorTransient, ErrorInvalid, ErrorFatal) drives how
// infrastructure code reacts: transient errors are retried, invalid errors are
// reported, fatal errors stop the process. Wrap helpers attach the failing
// component and method:
//
//	if err := kv.Put(ctx, key, data); err != nil {
//		return errors.WrapTransient(err, "KVCatalog", "Create", "store dataset")
//	}
//
// The request taxonomy (Kind and DMODError) describes what went wrong with a
// client request. The dispatcher turns any DMODError into a failure response
// using its Reason and Message; errors without a Kind are reported as internal
// and their text never reaches the wire.
//
//	if cpuCount <= 0 {
//		return nil, errors.Validation("cpu_count must be greater than 0, got %d", cpuCount)
//	}
package errors
