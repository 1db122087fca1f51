package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ClientInterface defines the remote operations the runner drives.
// This allows for mocking in tests.
type ClientInterface interface {
	// Close closes the SFTP channel and the SSH connection.
	Close() error
	// UploadTree transfers a local file or directory tree to the remote host.
	UploadTree(ctx context.Context, localPath, remoteDir string) (*TreeTransferResult, error)
	// DownloadTree transfers a remote file or directory tree to the local host.
	DownloadTree(ctx context.Context, remotePath, localPath string) (*TreeTransferResult, error)
	// RunCommand executes a shell command on the remote host and waits for it.
	RunCommand(ctx context.Context, cmd string) (*CommandResult, error)
}

// Client wraps one SSH session and one SFTP sub-channel. Both are acquired
// together in NewClient and released together in Close; the client is owned
// exclusively by one caller for its lifetime.
type Client struct {
	sshClient  *ssh.Client
	sftpClient SFTPClientInterface
}

// Ensure Client implements ClientInterface.
var _ ClientInterface = (*Client)(nil)

// SFTPClientInterface abstracts SFTP operations for testing.
type SFTPClientInterface interface {
	Open(path string) (SFTPFile, error)
	Create(path string) (SFTPFile, error)
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
	MkdirAll(path string) error
	Close() error
}

// SFTPFile abstracts file operations for testing.
type SFTPFile interface {
	io.Reader
	io.Writer
	io.Closer
}

// SFTPClientWrapper wraps the real sftp.Client to implement SFTPClientInterface.
type SFTPClientWrapper struct {
	client *sftp.Client
}

var _ SFTPClientInterface = (*SFTPClientWrapper)(nil)

func (w *SFTPClientWrapper) Open(path string) (SFTPFile, error)          { return w.client.Open(path) }
func (w *SFTPClientWrapper) Create(path string) (SFTPFile, error)        { return w.client.Create(path) }
func (w *SFTPClientWrapper) Stat(path string) (os.FileInfo, error)       { return w.client.Stat(path) }
func (w *SFTPClientWrapper) ReadDir(path string) ([]os.FileInfo, error)  { return w.client.ReadDir(path) }
func (w *SFTPClientWrapper) MkdirAll(path string) error                  { return w.client.MkdirAll(path) }
func (w *SFTPClientWrapper) Close() error                                { return w.client.Close() }

// NewClient connects to the remote host and opens the SFTP sub-channel.
func NewClient(config Config) (*Client, error) {
	config = config.WithDefaults()

	if config.Host == "" {
		return nil, fmt.Errorf("missing required field in remote config: host")
	}
	if config.User == "" {
		return nil, fmt.Errorf("missing required field in remote config: user")
	}

	authMethods, err := buildAuthMethods(config)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := buildHostKeyCallback(config)
	if err != nil {
		return nil, fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.Timeout,
	}

	targetAddr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	sshClient, err := ssh.Dial("tcp", targetAddr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", targetAddr, err)
	}

	rawSftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("failed to open SFTP channel: %w", err)
	}

	return &Client{
		sshClient:  sshClient,
		sftpClient: &SFTPClientWrapper{client: rawSftpClient},
	}, nil
}

// NewClientWithSFTP creates a Client with a custom SFTP client implementation.
// This is primarily used for testing with mock SFTP clients.
func NewClientWithSFTP(sftpClient SFTPClientInterface, sshClient *ssh.Client) *Client {
	return &Client{
		sshClient:  sshClient,
		sftpClient: sftpClient,
	}
}

// Close closes the SFTP channel and the SSH connection. Close failures are
// best-effort and never override the run's outcome.
func (c *Client) Close() error {
	if c.sftpClient != nil {
		c.sftpClient.Close()
	}
	if c.sshClient != nil {
		c.sshClient.Close()
	}
	return nil
}

// UploadFile uploads a local file to the remote host, creating remote
// parent directories as needed.
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("operation cancelled: %w", err)
	}

	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer localFile.Close()

	if err := c.EnsureRemoteDir(path.Dir(remotePath)); err != nil {
		return err
	}

	remoteFile, err := c.sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer remoteFile.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(remoteFile, localFile)
		if err != nil {
			done <- fmt.Errorf("failed to copy file content: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

// DownloadFile downloads a remote file to the local host, creating local
// parent directories as needed.
func (c *Client) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("operation cancelled: %w", err)
	}

	remoteFile, err := c.sftpClient.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer remoteFile.Close()

	if dir := filepath.Dir(localPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create local directory %s: %w", dir, err)
		}
	}

	localFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer localFile.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(localFile, remoteFile)
		if err != nil {
			done <- fmt.Errorf("failed to copy file content: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("download cancelled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

// EnsureRemoteDir creates a remote directory (and parents) if it does not
// already exist. An existing non-directory at the path is an error.
func (c *Client) EnsureRemoteDir(remoteDir string) error {
	if remoteDir == "" || remoteDir == "/" || remoteDir == "." {
		return nil
	}

	if info, err := c.sftpClient.Stat(remoteDir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("remote path %s exists and is not a directory", remoteDir)
		}
		return nil
	}

	if err := c.sftpClient.MkdirAll(remoteDir); err != nil {
		return fmt.Errorf("failed to create remote directory %s: %w", remoteDir, err)
	}
	return nil
}

// FileExists checks if a file exists on the remote host.
func (c *Client) FileExists(ctx context.Context, remotePath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("operation cancelled: %w", err)
	}

	_, err := c.sftpClient.Stat(remotePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CommandError reports a remote command that exited with a non-zero status.
type CommandError struct {
	// ExitStatus is the remote exit status.
	ExitStatus int

	// Stderr is the captured standard error of the failed command.
	Stderr string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command exited with status %d", e.ExitStatus)
}

// RunCommand executes cmd in a new session on the remote host and waits
// synchronously for it to finish. A non-zero exit status is returned as a
// *CommandError alongside the captured output.
func (c *Client) RunCommand(ctx context.Context, cmd string) (*CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("operation cancelled: %w", err)
	}

	session, err := c.sshClient.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		// Best-effort terminate session.
		_ = session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("command cancelled: %w", ctx.Err())
	case err := <-done:
		result := &CommandResult{
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				result.ExitStatus = exitErr.ExitStatus()
				return result, &CommandError{ExitStatus: exitErr.ExitStatus(), Stderr: result.Stderr}
			}
			return result, fmt.Errorf("failed to run remote command: %w", err)
		}
		return result, nil
	}
}

// Helper functions

// buildAuthMethods resolves credentials in the same order an interactive
// ssh client would: explicit password or key, then the ssh-agent, then the
// default key files under ~/.ssh.
func buildAuthMethods(config Config) ([]ssh.AuthMethod, error) {
	if config.Password != "" {
		return []ssh.AuthMethod{ssh.Password(config.Password)}, nil
	}

	if config.PrivateKey != "" || config.KeyPath != "" {
		keyAuth, err := buildPrivateKeyAuth(config.PrivateKey, config.KeyPath)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{keyAuth}, nil
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			// The agent connection lives as long as the process.
			ag := agent.NewClient(conn)
			return []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}, nil
		}
		log.Printf("[WARN] could not reach ssh-agent at %s: %v", sock, err)
	}

	for _, name := range defaultKeyFiles() {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		keyAuth, err := buildPrivateKeyAuth("", name)
		if err != nil {
			log.Printf("[WARN] skipping unusable key file %s: %v", name, err)
			continue
		}
		return []ssh.AuthMethod{keyAuth}, nil
	}

	return nil, fmt.Errorf("no SSH credentials available: set a key or password, or run an ssh-agent")
}

func defaultKeyFiles() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(homeDir, ".ssh", "id_ed25519"),
		filepath.Join(homeDir, ".ssh", "id_ecdsa"),
		filepath.Join(homeDir, ".ssh", "id_rsa"),
	}
}

func buildPrivateKeyAuth(privateKey, keyPath string) (ssh.AuthMethod, error) {
	var keyData []byte
	var err error

	if privateKey != "" {
		keyData = []byte(privateKey)
	} else {
		keyData, err = os.ReadFile(ExpandPath(keyPath))
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key file: %w", err)
		}
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH private key: %w", err)
	}

	return ssh.PublicKeys(signer), nil
}

func buildHostKeyCallback(config Config) (ssh.HostKeyCallback, error) {
	if config.InsecureIgnoreHostKey {
		log.Printf("[WARN] SSH host key verification disabled for %s:%d - this is insecure!", config.Host, config.Port)
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if config.KnownHostsFile != "" {
		expandedPath := ExpandPath(config.KnownHostsFile)
		callback, err := knownhosts.New(expandedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts file %s: %w", expandedPath, err)
		}
		return callback, nil
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		defaultKnownHosts := filepath.Join(homeDir, ".ssh", "known_hosts")
		if _, err := os.Stat(defaultKnownHosts); err == nil {
			callback, err := knownhosts.New(defaultKnownHosts)
			if err == nil {
				return callback, nil
			}
			log.Printf("[WARN] Could not parse known_hosts file %s: %v", defaultKnownHosts, err)
		}
	}

	log.Printf("[WARN] No known_hosts file found for %s:%d - host key verification disabled.", config.Host, config.Port)
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		return nil
	}, nil
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
