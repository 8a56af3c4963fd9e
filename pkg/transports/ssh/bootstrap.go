package ssh

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/pkg/sftp"
)

const bootstrapRemotePath = "/tmp/captura-bootstrap.sh"

// Upload writes data to a remote path over SFTP.
func (c *Client) Upload(remotePath string, data []byte, mode os.FileMode) error {
	client, err := sftp.NewClient(c.conn)
	if err != nil {
		return fmt.Errorf("failed to open sftp session: %w", err)
	}
	defer client.Close()

	if dir := path.Dir(remotePath); dir != "/" && dir != "." {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	file, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", remotePath, err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", remotePath, err)
	}
	if err := client.Chmod(remotePath, mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", remotePath, err)
	}
	return nil
}

// Bootstrap uploads the bootstrap script and runs it, returning the
// combined output. The script is removed afterwards regardless of outcome.
func (c *Client) Bootstrap(ctx context.Context, script []byte) (string, error) {
	if err := c.Upload(bootstrapRemotePath, script, 0o700); err != nil {
		return "", err
	}
	defer func() {
		_, _ = c.Run(ctx, "rm -f "+bootstrapRemotePath)
	}()
	return c.Run(ctx, bootstrapRemotePath)
}
