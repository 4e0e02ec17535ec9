// Package api is the client for the host application's HTTP API.
//
// The client covers the endpoints a smoke test needs:
//
//   - GET  /system_stats    readiness probe (Health)
//   - GET  /object_info     registered node types (ListRegisteredComponents, ObjectInfo)
//   - POST /prompt          job submission (SubmitJob)
//   - GET  /history/{id}    terminal job state (GetJobStatus)
//   - GET  /queue           queued vs running (GetJobStatus fallback)
//   - POST /queue, /interrupt  cancellation (CancelJob)
//   - POST /free            memory release after a run (FreeMemory)
//
// Connection errors are retried with bounded backoff. Well-formed HTTP error
// responses are returned immediately as *StatusError.
package api
