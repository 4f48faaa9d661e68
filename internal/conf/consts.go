// conf/consts.go hard coded constants
package conf

const (
	DefaultMaxCombinations      = 100   // combination expansion cap per analysis request
	DefaultMaxConcurrentLookups = 5     // parallel part lookups per analysis request
	DefaultProviderTimeoutMs    = 10000 // per-lookup timeout in milliseconds

	// MaxConcurrentLookupsLimit bounds the configurable fan-out width so a
	// misconfigured node cannot hammer upstream APIs.
	MaxConcurrentLookupsLimit = 64
)
