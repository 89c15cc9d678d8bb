// Package spaces is an S3-compatible client for DigitalOcean Spaces.
//
// Spaces speaks the S3 wire protocol, so the client is a thin wrapper around
// the AWS SDK pointed at the regional Spaces endpoint. Credentials are the
// Spaces access key pair, not the API token used by the rest of the system.
package spaces
