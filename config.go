package pipeline

import "time"

// Config holds SSH connection configuration for the remote host.
type Config struct {
	// Host is the target SSH server hostname or IP address.
	Host string

	// Port is the SSH port (default 22).
	Port int

	// User is the SSH username.
	User string

	// PrivateKey is the SSH private key content (PEM encoded).
	// Mutually exclusive with KeyPath.
	PrivateKey string

	// KeyPath is the path to the SSH private key file.
	// Mutually exclusive with PrivateKey.
	KeyPath string

	// Password is the SSH password for password authentication.
	Password string

	// Timeout is the connection timeout (default 30s).
	Timeout time.Duration

	// KnownHostsFile is the path to a known_hosts file for host key verification.
	// If not set, defaults to ~/.ssh/known_hosts if it exists.
	KnownHostsFile string

	// InsecureIgnoreHostKey skips host key verification.
	// WARNING: This is insecure and should only be used for testing.
	InsecureIgnoreHostKey bool
}

// WithDefaults returns a copy of the config with default values applied.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// TransferResult represents the result of transferring a single file.
type TransferResult struct {
	// LocalPath is the file path on the local side.
	LocalPath string

	// RemotePath is the file path on the remote side.
	RemotePath string

	// Hash is the SHA256 hash of the file content.
	Hash string

	// Size is the file size in bytes.
	Size int64

	// Error contains any error that occurred transferring this file.
	Error error
}

// TreeTransferResult represents the result of transferring a file tree.
type TreeTransferResult struct {
	// Files contains the result for each file, in transfer order.
	Files []TransferResult

	// TotalSize is the total size of all transferred files.
	TotalSize int64

	// CombinedHash is a combined hash over all file hashes.
	CombinedHash string

	// Transferred is the number of files copied successfully.
	Transferred int

	// Errors is the number of files that failed.
	Errors int
}

func (r *TreeTransferResult) add(res TransferResult) {
	r.Files = append(r.Files, res)
	if res.Error != nil {
		r.Errors++
		return
	}
	r.Transferred++
	r.TotalSize += res.Size
}

// CommandResult holds the outcome of a remote command invocation.
type CommandResult struct {
	// Stdout is the captured standard output of the command.
	Stdout string

	// Stderr is the captured standard error of the command.
	Stderr string

	// ExitStatus is the remote exit status. Zero means success.
	ExitStatus int
}
