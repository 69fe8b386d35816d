// Package api holds the HTTP handlers the bootstrap sequence installs:
//   - the fallback table (GET /api/status, GET /api/health, GET /health), which
//     depends on nothing but a clock and the ServerState so it cannot fail;
//   - CoreGroup, the always-present business group (status, health,
//     dependency and bootstrap introspection, /metrics);
//   - DatabaseGroup, which exposes an on-demand database probe and refuses to
//     register when the database checker was never initialized.
package api
