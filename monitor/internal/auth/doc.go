// Package auth enforces API key authentication on the gRPC health service
// and the HTTP status API.
//
// Every guard is built from the same (mode, header, key) triple. When mode
// is not "apikey" or key is empty all calls pass through, which is the
// local-development setting. Otherwise the value of header must equal key:
// gRPC calls fail with codes.Unauthenticated and HTTP requests get a JSON
// 401.
package auth
