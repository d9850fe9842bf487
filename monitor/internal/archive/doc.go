// Package archive uploads rotated log artifacts to S3-compatible object
// storage with minio-go. Uploads happen after a rotation has completed;
// a failed upload leaves the local artifact in place and is only logged.
package archive
