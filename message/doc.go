// Package message defines the DMOD wire protocol: the event types that
// discriminate inbound messages, the typed request bodies, and the uniform
// response envelope returned for every request.
//
// # Wire Format
//
// Every inbound message is a JSON object with a top-level
// "message_event_type" field naming its kind:
//
//	{"message_event_type": "PARTITION_REQUEST", "partition_count": 4, "hydrofabric_uid": "hf-1"}
//
// Dataset management messages additionally carry an "action". Messages are
// first read with ReadHeader, checked against the embedded JSON schema for
// their kind with Validate, and then decoded into a typed request with
// Decode.
//
// Every response has the same shape:
//
//	{"success": false, "reason": "Insufficient Resources", "message": "...", "data": null}
package message
