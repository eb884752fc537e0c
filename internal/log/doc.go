// Package log provides secure logging functionality with automatic sanitization
// of credentials, built on top of the standard slog package.
//
// BoxHunt talks to image APIs that authenticate with keys sent in headers
// and, for some endpoints, in query strings. The SecureHandler masks:
//   - attributes named like credentials (authorization, api_key, client_id, access_key)
//   - values that look like bearer, Client-ID or opaque API keys
//   - credential query parameters inside logged URLs
//
// Even in verbose mode, credentials are masked so logs can be shared.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("search",
//	    "source", "unsplash",
//	    "authorization", "Client-ID abc", // masked
//	)
//	slog.SetDefault(logger)
package log
