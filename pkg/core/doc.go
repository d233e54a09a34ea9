// Package core provides the fundamental types and interfaces for the escrow package.
//
// This package contains:
//   - Job, RequestIndex, Transfer, Settings and Notification models with GORM annotations
//   - Storage interface defining the persistence contract
//   - Directory, Oracle and Bank interfaces for external collaborators
//   - Event types for notification streaming
//   - Registered error values
//
// Most users should import the root package github.com/jdziat/agent-escrow
// instead of this package directly.
package core
