// Package petadoption provides the public API for embedding the pet
// adoption service. This is the stable API for external consumers.
package petadoption

import (
	"github.com/acme/petadoption/internal/runtime"
)

// Service runs the pet adoption API.
// See internal/runtime.Service for full documentation.
type Service = runtime.Service

// Option is a functional option for configuring a Service.
type Option = runtime.Option

// New creates a new Service with the given options.
// Example:
//
//	svc, err := petadoption.New(
//	    petadoption.WithFileConfig("config.yaml"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfig         = runtime.WithConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithSQLite          = runtime.WithSQLite
	WithStorageProvider = runtime.WithStorageProvider

	// Shared infrastructure
	WithRedisClient = runtime.WithRedisClient
	WithMetrics     = runtime.WithMetrics
	WithTraceOutput = runtime.WithTraceOutput
	WithLogger      = runtime.WithLogger
)
