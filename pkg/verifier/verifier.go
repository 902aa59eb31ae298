// Package verifier provides the public API for embedding the behavioral
// verification service. This is the stable API for external consumers.
package verifier

import (
	"github.com/tjfontaine/behavior-verify-gateway/internal/runtime"
	"github.com/tjfontaine/behavior-verify-gateway/internal/submission"
)

// Verifier is the main entry point for running the service.
// See internal/runtime.Verifier for full documentation.
type Verifier = runtime.Verifier

// Option is a functional option for configuring a Verifier.
type Option = runtime.Option

// New creates a new Verifier with the given options.
// Example:
//
//	v, err := verifier.New(
//	    verifier.WithFileConfig("config.yaml"),
//	    verifier.WithSQLite("./data/verifier.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig = runtime.WithFileConfig
	WithConfig     = runtime.WithConfig

	// Storage
	WithSQLite        = runtime.WithSQLite
	WithPostgres      = runtime.WithPostgres
	WithMemoryStorage = runtime.WithMemoryStorage

	// Events
	WithDirectEvents = runtime.WithDirectEvents
	WithKafkaEvents  = runtime.WithKafkaEvents
	WithNATSEvents   = runtime.WithNATSEvents

	// Advanced options
	WithLogger         = runtime.WithLogger
	WithListener       = runtime.WithListener
	WithConfigProvider = runtime.WithConfigProvider
	WithAuthProvider   = runtime.WithAuthProvider
	WithStorage        = runtime.WithStorage
	WithClassifier     = runtime.WithClassifier
	WithGeoResolver    = runtime.WithGeoResolver
	WithPublisher      = runtime.WithPublisher
)

// Client submits sessions to a running verifier with retries.
type Client = submission.Client

// ClientOption configures a Client.
type ClientOption = submission.ClientOption

// NewClient creates a submission client for baseURL.
var NewClient = submission.NewClient
