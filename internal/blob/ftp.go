package blob

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPStore uploads artifacts to an FTP server whose document root is served
// over HTTP at a public base URL. A fresh connection is dialed per upload;
// finalize traffic is low-volume and bounded by the worker pool, so keeping
// idle control connections alive is not worth the reconnect handling.
type FTPStore struct {
	addr     string
	user     string
	password string
	rootDir  string
	baseURL  string
	timeout  time.Duration
}

// NewFTPStore creates an FTPStore. rootDir is the remote directory that maps
// to baseURL.
func NewFTPStore(addr, user, password, rootDir, baseURL string) *FTPStore {
	return &FTPStore{
		addr:     addr,
		user:     user,
		password: password,
		rootDir:  strings.TrimRight(rootDir, "/"),
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  30 * time.Second,
	}
}

// Upload stores the local artifact at rootDir/destPath on the server.
func (s *FTPStore) Upload(ctx context.Context, localPath, destPath string) (string, error) {
	conn, err := ftp.Dial(s.addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(s.timeout))
	if err != nil {
		return "", fmt.Errorf("connect to FTP: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(s.user, s.password); err != nil {
		return "", fmt.Errorf("login to FTP: %w", err)
	}

	remote := path.Join(s.rootDir, destPath)

	// Best-effort creation of intermediate directories; MakeDir fails on
	// existing directories, which is fine.
	dir := path.Dir(remote)
	if dir != "." && dir != "/" {
		parts := strings.Split(strings.Trim(dir, "/"), "/")
		built := ""
		for _, p := range parts {
			built = built + "/" + p
			_ = conn.MakeDir(built)
		}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	if err := conn.Stor(remote, f); err != nil {
		return "", fmt.Errorf("upload artifact: %w", err)
	}

	return s.baseURL + "/" + destPath, nil
}
