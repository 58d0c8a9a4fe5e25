// Package api hosts the HTTP gateway. Notable routes:
//   - GET (and HEAD) / and /health for load balancer probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /scrape/{routine} to run a registered scrape routine in a fresh browser.
//
// Every other method or path receives a JSON 404 listing the available routes.
package api
