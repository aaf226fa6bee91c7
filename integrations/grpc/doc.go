// Package grpc provides gRPC client interceptors backed by the same
// credentials, refresh coordination and retry policy as the HTTP client.
//
// # Basic Usage
//
//	client, err := apiclient.New(apiclient.WithBaseURL("https://api.example.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	interceptor, err := apigrpc.New(
//	    apigrpc.WithAuthenticator(client),
//	    apigrpc.WithExcludedMethods("/grpc.health.v1.Health/Check"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	conn, err := grpc.NewClient("api.example.com:443",
//	    grpc.WithTransportCredentials(credentials.NewTLS(nil)),
//	    grpc.WithUnaryInterceptor(interceptor.UnaryClientInterceptor()),
//	    grpc.WithStreamInterceptor(interceptor.StreamClientInterceptor()),
//	)
//
// # Behaviour
//
//   - The access token is sent as "authorization: Bearer <token>" metadata.
//   - Unauthenticated triggers one refresh, shared with every concurrent
//     HTTP and gRPC caller, and one replay.
//   - Unavailable, ResourceExhausted and DeadlineExceeded are retried with
//     the client's exponential backoff.
//   - Final errors are mapped to *core.NetworkError or *core.APIError by
//     DefaultErrorHandler; use PassthroughErrorHandler to keep status errors.
package grpc
