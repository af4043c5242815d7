// Package handlers contains the HTTP handlers for the gallery-sync API:
// job submission and lifecycle control, media replacement uploads, and the
// health, readiness, and version endpoints. Long-running job handlers stream
// progress to the client as server-sent events while the job itself runs on
// a background context so a dropped connection does not abort the work.
package handlers
