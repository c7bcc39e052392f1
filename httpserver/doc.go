/*
Package httpserver runs the custody API.

The server mounts the routes of any RouteRegistrar (api/signhandler in production) next to
the operational endpoints:

  - GET /livez: liveness
  - GET /readyz: readiness, false while draining
  - GET /drain, GET /undrain: toggle readiness for rolling restarts
  - /debug/pprof: profiling, when enabled

Every request is logged through httplogger and timed into the metrics server's
http_request_duration_seconds histogram, labelled by route pattern.
*/
package httpserver
