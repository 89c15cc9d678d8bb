// Package ssh is the onboarding transport for freshly created droplets. It
// waits for the SSH daemon to become reachable, uploads a bootstrap script
// over SFTP, runs it, and collects a small set of host facts.
package ssh
