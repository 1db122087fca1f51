package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// UploadTree transfers a local path to the remote host. A single file is
// copied under remoteDir keeping its base name; a directory is walked
// recursively and every file is copied preserving its relative path.
// Transfers run sequentially and fail fast: the first failing file aborts
// the tree, and files already transferred stay in place.
func (c *Client) UploadTree(ctx context.Context, localPath, remoteDir string) (*TreeTransferResult, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("local path %s does not exist", localPath)
		}
		return nil, fmt.Errorf("failed to stat local path %s: %w", localPath, err)
	}

	result := &TreeTransferResult{}

	if !info.IsDir() {
		res, err := c.uploadOne(ctx, localPath, path.Join(remoteDir, filepath.Base(localPath)))
		result.add(res)
		if err != nil {
			return result, err
		}
		result.CombinedHash = ComputeCombinedHash([]FileInfo{{RelPath: filepath.Base(localPath), Hash: res.Hash, Size: res.Size}})
		return result, nil
	}

	files, err := ScanDirectory(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to scan local directory: %w", err)
	}

	for _, f := range files {
		res, err := c.uploadOne(ctx,
			filepath.Join(localPath, f.RelPath),
			path.Join(remoteDir, filepath.ToSlash(f.RelPath)))
		result.add(res)
		if err != nil {
			return result, err
		}
	}

	result.CombinedHash = ComputeCombinedHash(files)
	return result, nil
}

// DownloadTree transfers a remote path to the local host. A single remote
// file is copied to localPath (or under it, when localPath is an existing
// directory); a remote directory is walked recursively and mirrored locally
// preserving relative paths. Like UploadTree, transfers are sequential and
// fail fast with no rollback.
func (c *Client) DownloadTree(ctx context.Context, remotePath, localPath string) (*TreeTransferResult, error) {
	info, err := c.sftpClient.Stat(remotePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat remote path %s: %w", remotePath, err)
	}

	result := &TreeTransferResult{}

	if !info.IsDir() {
		target := localPath
		if li, err := os.Stat(localPath); err == nil && li.IsDir() {
			target = filepath.Join(localPath, path.Base(remotePath))
		}
		res, err := c.downloadOne(ctx, remotePath, target)
		result.add(res)
		if err != nil {
			return result, err
		}
		result.CombinedHash = ComputeCombinedHash([]FileInfo{{RelPath: path.Base(remotePath), Hash: res.Hash, Size: res.Size}})
		return result, nil
	}

	rels, err := c.walkRemote(remotePath)
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	for _, rel := range rels {
		res, err := c.downloadOne(ctx,
			path.Join(remotePath, rel),
			filepath.Join(localPath, filepath.FromSlash(rel)))
		result.add(res)
		if err != nil {
			return result, err
		}
		files = append(files, FileInfo{RelPath: rel, Hash: res.Hash, Size: res.Size})
	}

	result.CombinedHash = ComputeCombinedHash(files)
	return result, nil
}

func (c *Client) uploadOne(ctx context.Context, localPath, remotePath string) (TransferResult, error) {
	res := TransferResult{LocalPath: localPath, RemotePath: remotePath}

	hash, size, err := HashFile(localPath)
	if err != nil {
		res.Error = fmt.Errorf("failed to hash local file: %w", err)
		return res, res.Error
	}
	res.Hash = hash
	res.Size = size

	if err := c.UploadFile(ctx, localPath, remotePath); err != nil {
		res.Error = err
		return res, err
	}
	return res, nil
}

func (c *Client) downloadOne(ctx context.Context, remotePath, localPath string) (TransferResult, error) {
	res := TransferResult{LocalPath: localPath, RemotePath: remotePath}

	if err := c.DownloadFile(ctx, remotePath, localPath); err != nil {
		res.Error = err
		return res, err
	}

	hash, size, err := HashFile(localPath)
	if err != nil {
		res.Error = fmt.Errorf("failed to hash downloaded file: %w", err)
		return res, res.Error
	}
	res.Hash = hash
	res.Size = size
	return res, nil
}

// walkRemote lists every file under root recursively, returning paths
// relative to root in sorted order.
func (c *Client) walkRemote(root string) ([]string, error) {
	var rels []string

	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		entries, err := c.sftpClient.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to list remote directory %s: %w", dir, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				if err := walk(path.Join(dir, name), path.Join(rel, name)); err != nil {
					return err
				}
				continue
			}
			rels = append(rels, path.Join(rel, name))
		}
		return nil
	}

	if err := walk(root, ""); err != nil {
		return nil, err
	}

	sort.Strings(rels)
	return rels, nil
}

// FileInfo holds information about a file in a scanned tree.
type FileInfo struct {
	RelPath string
	Hash    string
	Size    int64
}

// ScanDirectory walks a local directory and returns information about all
// files, sorted by relative path.
func ScanDirectory(root string) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		hash, size, err := HashFile(p)
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", relPath, err)
		}

		files = append(files, FileInfo{
			RelPath: relPath,
			Hash:    hash,
			Size:    size,
		})

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})

	return files, nil
}

// HashFile computes the SHA256 hash of a file.
func HashFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	h := sha256.New()
	size, err := io.Copy(h, file)
	if err != nil {
		return "", 0, err
	}

	return "sha256:" + hex.EncodeToString(h.Sum(nil)), size, nil
}

// ComputeCombinedHash computes a combined hash from multiple file hashes.
func ComputeCombinedHash(files []FileInfo) string {
	h := sha256.New()
	for _, file := range files {
		_, _ = io.WriteString(h, file.RelPath)
		_, _ = io.WriteString(h, ":")
		_, _ = io.WriteString(h, file.Hash)
		_, _ = io.WriteString(h, "\n")
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
