// Package http contains the chi HTTP handlers exposing the engine:
// normalization (single and batch), fusion, statistics, runtime
// configuration and health.
package http
