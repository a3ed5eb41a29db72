// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation protecting the query API. The key is read
//     from the X-API-Key header or the api_key query parameter.
//   - rayid: assigns every request a ray ID, stored in the fiber locals
//     under "ray_id" and echoed in the X-Ray-ID response header, so
//     logger.WithRayID can tag every log line of a request.
//
// Both are registered globally in the start command; rayid comes first so
// that rejected requests are traced too.
package middleware
