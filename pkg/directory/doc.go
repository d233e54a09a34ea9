// Package directory binds the escrow to a provider directory.
//
// The escrow only reads providers. Gorm and Memory also expose Put so the
// daemon and tests can seed entries; registration workflows, pricing policy
// and activation live outside this module.
package directory
