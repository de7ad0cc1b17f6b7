// Package domain defines the core business types for the excerpt gateway.
//
// Types in this package are pure value objects with no behavior beyond
// validation, no store dependencies, and no HTTP concerns. They are the
// shared language between handlers, services, and the store adapter.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No AWS clients, no http.Request, no context.Context in struct fields
//   - JSON/DynamoDB tags are allowed (they're metadata, not behavior)
//   - Validation methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here
package domain
